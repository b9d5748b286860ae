package types

import "golang.org/x/text/width"

// TriggerMode tells which kind of candidate is being completed
type TriggerMode int

const (
	// ModeMention completes cached users after an @ trigger
	ModeMention TriggerMode = iota
	// ModeHashtag completes cached hashtags
	ModeHashtag
)

// String returns the mode name used in logs and tool responses
func (m TriggerMode) String() string {
	switch m {
	case ModeMention:
		return "mention"
	case ModeHashtag:
		return "hashtag"
	default:
		return "unknown"
	}
}

// IsMentionTrigger reports whether r is the ASCII @ or its full-width form U+FF20.
func IsMentionTrigger(r rune) bool {
	if r == '@' {
		return true
	}
	return width.LookupRune(r).Narrow() == '@'
}

// ModeForTrigger maps the rune preceding a typed prefix to a trigger mode
func ModeForTrigger(r rune) TriggerMode {
	if IsMentionTrigger(r) {
		return ModeMention
	}
	return ModeHashtag
}
