package scene

// BackgroundType is the background variant.
type BackgroundType string

const (
	BackgroundGrid  BackgroundType = "grid"
	BackgroundDots  BackgroundType = "dots"
	BackgroundNone  BackgroundType = "none"
	BackgroundImage BackgroundType = "image"
)

// Background is the singleton per-scene background configuration.
type Background struct {
	Type           BackgroundType `json:"type"`
	Color          string         `json:"color"`
	SecondaryColor string         `json:"secondaryColor,omitempty"`
	Size           float64        `json:"size"`    // spacing/size of the pattern
	Opacity        float64        `json:"opacity"` // [0,1]
	Image          string         `json:"image,omitempty"`
}

// DefaultBackground returns the background a fresh scene starts with.
func DefaultBackground() Background {
	return Background{
		Type:    BackgroundDots,
		Color:   "#e5e7eb",
		Size:    24,
		Opacity: 0.5,
	}
}

// BackgroundPatch holds the optional fields of a modifyBackground action.
// Nil fields are left untouched by Merge.
type BackgroundPatch struct {
	Type           *BackgroundType
	Color          *string
	SecondaryColor *string
	Size           *float64
	Opacity        *float64
	Image          *string
}

// Merge field-merges the patch onto b and returns the result.
func (b Background) Merge(p BackgroundPatch) Background {
	if p.Type != nil {
		b.Type = *p.Type
	}
	if p.Color != nil {
		b.Color = *p.Color
	}
	if p.SecondaryColor != nil {
		b.SecondaryColor = *p.SecondaryColor
	}
	if p.Size != nil {
		b.Size = *p.Size
	}
	if p.Opacity != nil {
		b.Opacity = *p.Opacity
	}
	if p.Image != nil {
		b.Image = *p.Image
	}
	return b
}
