package ingest

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrInvalidStatus is returned for statuses without an ID
	ErrInvalidStatus = errors.New("status has no id")
	// ErrInvalidUser is returned for users without an ID or any name
	ErrInvalidUser = errors.New("user has no id or name")
)

// User is the author or a mentioned account of a status
type User struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Status is a received post whose users and hashtags feed the caches
type Status struct {
	ID       int64    `json:"id"`
	Text     string   `json:"text"`
	User     User     `json:"user"`
	Mentions []User   `json:"mentions,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// extraction is what one status contributes to the caches
type extraction struct {
	users    []User
	hashtags []string
}

func (u User) validate() error {
	if u.ID <= 0 || (u.Name == "" && u.ScreenName == "") {
		return ErrInvalidUser
	}
	return nil
}

// extract collects the users and hashtags of s. Tags listed on the status
// win over tags found in its text.
func extract(s Status) (extraction, error) {
	var ex extraction
	if s.ID <= 0 {
		return ex, ErrInvalidStatus
	}
	if err := s.User.validate(); err != nil {
		return ex, err
	}

	ex.users = append(ex.users, s.User)
	for _, m := range s.Mentions {
		// Mentions of unknown accounts carry no id; skip them
		if m.validate() != nil {
			continue
		}
		ex.users = append(ex.users, m)
	}

	if len(s.Hashtags) > 0 {
		seen := make(map[string]bool, len(s.Hashtags))
		for _, tag := range s.Hashtags {
			tag = NormalizeHashtag(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			ex.hashtags = append(ex.hashtags, tag)
		}
	} else {
		ex.hashtags = ExtractHashtags(s.Text)
	}
	return ex, nil
}

// NormalizeHashtag trims spaces and a leading '#' or '＃' from tag
func NormalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.TrimPrefix(tag, "＃")
	return tag
}

func isHashMark(r rune) bool {
	return r == '#' || r == '＃'
}

func isTagRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// ExtractHashtags returns the distinct tags in text, in order of first
// appearance and without the leading mark. A tag is '#' or '＃' followed by
// letters, digits or underscores, not glued to a preceding word, and not
// made of digits only.
func ExtractHashtags(text string) []string {
	var (
		tags []string
		seen = map[string]bool{}
		prev rune
	)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isHashMark(r) || isTagRune(prev) {
			prev = r
			i += size
			continue
		}

		start := i + size
		end := start
		for end < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[end:])
			if !isTagRune(r2) {
				break
			}
			end += s2
		}

		tag := text[start:end]
		if tag != "" && !allDigits(tag) && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
		if end == start {
			prev = r
			i = start
			continue
		}
		prev, _ = utf8.DecodeLastRuneInString(tag)
		i = end
	}
	return tags
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
