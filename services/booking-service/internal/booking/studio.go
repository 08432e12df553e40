package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
)

// PublicStudio returns the studio branding, falling back to the built-in
// defaults before an admin has saved any.
func (s *Service) PublicStudio(ctx context.Context) (model.Studio, error) {
	st, err := s.catalog.GetStudio(ctx)
	if storage.IsNotFound(err) {
		return model.DefaultStudio(), nil
	}
	return st, err
}

func (s *Service) GetStudio(ctx context.Context) (model.Studio, error) {
	st, err := s.catalog.GetStudio(ctx)
	if storage.IsNotFound(err) {
		return model.Studio{}, fmt.Errorf("studio: %w", ErrNotFound)
	}
	return st, err
}

// StudioPatch is a partial branding update. ClearLogo removes the logo and
// ResetBrandColor restores the default color.
type StudioPatch struct {
	Name            *string
	LogoURL         *string
	ClearLogo       bool
	BrandColor      *string
	ResetBrandColor bool
}

// UpdateStudio applies patch to the studio, creating it from the defaults
// when none exists.
func (s *Service) UpdateStudio(ctx context.Context, patch StudioPatch) (model.Studio, error) {
	cur, err := s.catalog.GetStudio(ctx)
	switch {
	case storage.IsNotFound(err):
		cur = model.DefaultStudio()
	case err != nil:
		return model.Studio{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Studio{}, invalid("name", "must not be empty")
		}
		cur.Name = name
	}
	switch {
	case patch.ClearLogo:
		cur.LogoURL = nil
	case patch.LogoURL != nil:
		if logo := strings.TrimSpace(*patch.LogoURL); logo != "" {
			cur.LogoURL = &logo
		} else {
			cur.LogoURL = nil
		}
	}
	switch {
	case patch.ResetBrandColor:
		cur.BrandColor = model.DefaultBrandColor
	case patch.BrandColor != nil:
		if !hexColor.MatchString(*patch.BrandColor) {
			return model.Studio{}, invalid("brandColor", "must be a #RRGGBB color")
		}
		cur.BrandColor = *patch.BrandColor
	}

	if err := s.catalog.SaveStudio(ctx, &cur); err != nil {
		return model.Studio{}, err
	}
	s.logger.Info("studio updated", "studio_id", cur.ID)
	return cur, nil
}
