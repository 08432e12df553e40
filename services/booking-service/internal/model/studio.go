package model

const (
	DefaultStudioName = "预约平台"
	DefaultBrandColor = "#6366f1"
)

// Studio is the branding shown on the public booking pages.
type Studio struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	LogoURL    *string `json:"logoUrl"`
	BrandColor string  `json:"brandColor"`
}

// DefaultStudio is served until an admin saves branding.
func DefaultStudio() Studio {
	return Studio{Name: DefaultStudioName, BrandColor: DefaultBrandColor}
}
