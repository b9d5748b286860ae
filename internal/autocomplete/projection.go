package autocomplete

import (
	"fmt"

	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/pkg/types"
)

// schema holds the column positions of one result set. A handle with a
// screen_name column is read as users, anything else as hashtags.
type schema struct {
	kind            types.CandidateKind
	id              int
	name            int
	screenName      int
	profileImageURL int
}

func resolveSchema(h types.ResultHandle) schema {
	s := schema{
		name:            h.ColumnIndex(storage.ColumnName),
		screenName:      h.ColumnIndex(storage.ColumnScreenName),
		profileImageURL: h.ColumnIndex(storage.ColumnProfileImageURL),
	}
	if s.screenName >= 0 {
		s.kind = types.KindUser
		s.id = h.ColumnIndex(storage.ColumnUserID)
	} else {
		s.kind = types.KindHashtag
		s.id = h.ColumnIndex(storage.ColumnID)
	}
	return s
}

func (s schema) record(h types.ResultHandle, row int) (types.Candidate, error) {
	if s.name < 0 {
		return types.Candidate{}, types.ErrUnknownVariant
	}
	if row < 0 || row >= h.Len() {
		return types.Candidate{}, types.ErrRowOutOfRange
	}

	c := types.Candidate{
		Kind: s.kind,
		Name: h.String(row, s.name),
	}
	if s.id >= 0 {
		c.ID = h.Int64(row, s.id)
	}
	if s.kind == types.KindUser {
		c.ScreenName = h.String(row, s.screenName)
		if s.profileImageURL >= 0 {
			c.ProfileImageURL = h.String(row, s.profileImageURL)
		}
	}
	if err := c.Validate(); err != nil {
		return types.Candidate{}, fmt.Errorf("row %d: %w", row, err)
	}
	return c, nil
}

// project maps a candidate to the text and image shown in its row
func project(c types.Candidate, displayImages bool, hashtagLabel string) types.DisplayFields {
	var f types.DisplayFields
	if c.IsUser() {
		f.Primary = c.Name
		f.Secondary = "@" + c.ScreenName
	} else {
		f.Primary = "#" + c.Name
		f.Secondary = hashtagLabel
	}

	switch {
	case !displayImages:
		f.Image = types.ImageHidden
	case !c.IsUser():
		f.Image = types.ImageHashtagIcon
	case c.ProfileImageURL != "":
		f.Image = types.ImageReference
		f.ImageRef = c.ProfileImageURL
	default:
		f.Image = types.ImageDefaultAvatar
	}
	return f
}
