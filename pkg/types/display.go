package types

// ImageDirective tells the view layer what to put in a row's image slot
type ImageDirective string

const (
	// ImageHidden removes the image slot entirely
	ImageHidden ImageDirective = "hidden"
	// ImageReference shows the profile image at DisplayFields.ImageRef
	ImageReference ImageDirective = "reference"
	// ImageDefaultAvatar shows the placeholder avatar for users
	ImageDefaultAvatar ImageDirective = "default_avatar"
	// ImageHashtagIcon shows the hashtag icon
	ImageHashtagIcon ImageDirective = "hashtag_icon"
)

// DisplayFields is the projection of a candidate row for a suggestion list
type DisplayFields struct {
	Primary   string
	Secondary string
	Image     ImageDirective
	ImageRef  string // Set only when Image == ImageReference
}
