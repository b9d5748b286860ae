package types

// CandidateKind identifies the active variant of a Candidate
type CandidateKind string

const (
	KindUser    CandidateKind = "user"
	KindHashtag CandidateKind = "hashtag"
)

// Candidate is one matched suggestion. Exactly one variant is active:
// users carry Name, ScreenName and ProfileImageURL, hashtags carry Name only.
type Candidate struct {
	Kind CandidateKind
	ID   int64

	// Name is the user's display name or the tag name (without '#')
	Name string

	// User variant only
	ScreenName      string
	ProfileImageURL string
}

// IsUser reports whether the user variant is active
func (c Candidate) IsUser() bool {
	return c.Kind == KindUser
}

// Validate checks that the active variant is consistent
func (c Candidate) Validate() error {
	switch c.Kind {
	case KindUser:
		if c.Name == "" && c.ScreenName == "" {
			return ErrEmptyCandidate
		}
	case KindHashtag:
		if c.Name == "" {
			return ErrEmptyCandidate
		}
		if c.ScreenName != "" || c.ProfileImageURL != "" {
			return ErrMixedVariant
		}
	default:
		return ErrUnknownVariant
	}
	return nil
}
