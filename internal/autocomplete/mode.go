package autocomplete

import (
	"github.com/dshills/composecomplete/pkg/types"
)

// TextSource is the live text being composed
type TextSource interface {
	Text() string
	// SelectionEnd is the caret position as a rune offset into Text
	SelectionEnd() int
}

// StaticText is a TextSource over a fixed snapshot
type StaticText struct {
	Body  string
	Caret int
}

func (s StaticText) Text() string      { return s.Body }
func (s StaticText) SelectionEnd() int { return s.Caret }

// DetectMode inspects the rune just before the typed prefix, at
// caret-prefixLength-1. '@' and '＠' select ModeMention, anything else
// ModeHashtag. ok is false when the position falls outside text.
func DetectMode(text string, caret, prefixLength int) (mode types.TriggerMode, ok bool) {
	if caret < 0 || prefixLength < 0 {
		return mode, false
	}
	runes := []rune(text)
	if caret > len(runes) {
		return mode, false
	}
	i := caret - prefixLength - 1
	if i < 0 {
		return mode, false
	}
	return types.ModeForTrigger(runes[i]), true
}
