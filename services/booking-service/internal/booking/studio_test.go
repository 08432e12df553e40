package booking

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicStudioFallsBackToDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.svc.PublicStudio(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultStudioName, st.Name)
	assert.Equal(t, model.DefaultBrandColor, st.BrandColor)
	assert.Nil(t, st.LogoURL)

	_, err = h.svc.GetStudio(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStudioCreatesThenPatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.UpdateStudio(ctx, StudioPatch{
		Name:       ptr("Lumen Studio"),
		LogoURL:    ptr("https://cdn.example.com/logo.png"),
		BrandColor: ptr("#FF8800"),
	})
	require.NoError(t, err)
	assert.Equal(t, "studio-1", created.ID)
	assert.Equal(t, "Lumen Studio", created.Name)
	require.NotNil(t, created.LogoURL)
	assert.Equal(t, "https://cdn.example.com/logo.png", *created.LogoURL)

	public, err := h.svc.PublicStudio(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#FF8800", public.BrandColor)

	patched, err := h.svc.UpdateStudio(ctx, StudioPatch{ClearLogo: true, ResetBrandColor: true})
	require.NoError(t, err)
	assert.Equal(t, "Lumen Studio", patched.Name)
	assert.Nil(t, patched.LogoURL)
	assert.Equal(t, model.DefaultBrandColor, patched.BrandColor)
	assert.Equal(t, "studio-1", h.store.studio.ID)
}

func TestUpdateStudioValidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.UpdateStudio(ctx, StudioPatch{Name: ptr("   ")})
	assert.True(t, IsValidation(err))

	_, err = h.svc.UpdateStudio(ctx, StudioPatch{BrandColor: ptr("red")})
	assert.True(t, IsValidation(err))

	_, err = h.svc.UpdateStudio(ctx, StudioPatch{BrandColor: ptr("#12345")})
	assert.True(t, IsValidation(err))
	assert.Nil(t, h.store.studio)
}
