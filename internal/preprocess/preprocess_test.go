package preprocess

import (
	"errors"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := utils.EncodePNG(imaging.New(w, h, color.White))
	require.NoError(t, err)
	return data
}

func names(vs []*Variant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Recipe.Name)
	}
	return out
}

func TestDecode_UnreadableInputIsImageDecodeError(t *testing.T) {
	p := New(Config{})
	_, err := p.Decode([]byte("not an image"))
	require.Error(t, err)
	var de *domain.ImageDecodeError
	assert.True(t, errors.As(err, &de))
}

func TestDecode_DownscalesLargeUploads(t *testing.T) {
	p := New(Config{MaxDimension: 100})
	src, err := p.Decode(pngBytes(t, 400, 200))
	require.NoError(t, err)
	assert.Equal(t, 100, src.Width())
	assert.Equal(t, 50, src.Height())
	assert.Equal(t, 100, src.Quality.Width, "quality is assessed on the downscaled image")
	assert.Equal(t, 50, src.Quality.Height)
	assert.True(t, src.Quality.IsGrayscale)
	assert.InDelta(t, 255, src.Quality.MeanLuma, 0.5)
}

func TestRecipesFor_OrderedMostAggressiveFirst(t *testing.T) {
	for _, kind := range []domain.FieldKind{domain.KindDate, domain.KindName, domain.KindAddress, domain.KindIDNumber, domain.KindGeneric} {
		for _, relaxed := range []bool{false, true} {
			rs := RecipesFor(kind, true, relaxed)
			require.NotEmpty(t, rs)
			assert.Equal(t, SourceRecipe, rs[len(rs)-1], "%s: source closes the list", kind)
			for i := 1; i < len(rs); i++ {
				assert.GreaterOrEqual(t, rs[i-1].Aggressiveness, rs[i].Aggressiveness, "%s relaxed=%v", kind, relaxed)
			}
		}
	}
}

func TestVariants_SourceRecipeRendersDecodedImage(t *testing.T) {
	p := New(Config{})
	src, err := p.Decode(pngBytes(t, 40, 20))
	require.NoError(t, err)

	vs := p.Variants(src, &doctype.FieldSpec{Kind: domain.KindGeneric}, false)
	require.NotEmpty(t, vs)
	last := vs[len(vs)-1]
	assert.Equal(t, SourceRecipe.Name, last.Recipe.Name)
	assert.Equal(t, "source", SourceRecipe.Name)
	assert.Zero(t, SourceRecipe.Aggressiveness)
}

func TestRecipesFor_DateList(t *testing.T) {
	got := RecipesFor(domain.KindDate, false, false)
	assert.Equal(t, "deskew+contrast+otsu", got[0].Name)
	assert.Equal(t, "deskew+grayscale", got[1].Name)

	relaxed := RecipesFor(domain.KindDate, false, true)
	assert.True(t, relaxed[0].Relaxed)
	assert.Equal(t, "upscale2x+sharpen+otsu", relaxed[0].Name)
	assert.Len(t, relaxed, len(got)+2)
}

func TestRecipesFor_IDWithoutZoneSkipsCrop(t *testing.T) {
	for _, r := range RecipesFor(domain.KindIDNumber, false, false) {
		assert.False(t, r.UsesROI(), r.Name)
	}
	assert.True(t, RecipesFor(domain.KindIDNumber, true, false)[0].UsesROI())
}

func TestVariants_SharedAcrossFieldsAndLazy(t *testing.T) {
	p := New(Config{})
	src, err := p.Decode(pngBytes(t, 120, 80))
	require.NoError(t, err)

	name := &doctype.FieldSpec{Field: domain.FieldFullName, Kind: domain.KindName}
	addr := &doctype.FieldSpec{Field: domain.FieldAddress, Kind: domain.KindAddress}

	nv := p.Variants(src, name, false)
	av := p.Variants(src, addr, false)
	assert.Equal(t, []string{"denoise+adaptive", "denoise+grayscale", "source"}, names(nv))
	for i := range nv {
		assert.Same(t, nv[i], av[i], "identical recipes share one variant")
	}
	assert.Nil(t, nv[0].img, "nothing rendered until asked")

	img, err := nv[0].Render()
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
}

func TestVariant_ROICropMapsBackToSource(t *testing.T) {
	p := New(Config{ROIPadding: 0.0001})
	src, err := p.Decode(pngBytes(t, 200, 100))
	require.NoError(t, err)

	spec := &doctype.FieldSpec{
		Field: domain.FieldIDNumber,
		Kind:  domain.KindIDNumber,
		Zone:  &doctype.Zone{X0: 0.5, Y0: 0.5, X1: 1, Y1: 1},
	}
	vs := p.Variants(src, spec, false)
	require.True(t, vs[0].Recipe.UsesROI())

	img, err := vs[0].Render()
	require.NoError(t, err)
	assert.InDelta(t, 100, img.Bounds().Dx(), 1)

	got := vs[0].ToSource(domain.Box{X: 10, Y: 5, W: 20, H: 10})
	assert.InDelta(t, 110, got.X, 1)
	assert.InDelta(t, 55, got.Y, 1)
	assert.Equal(t, 20, got.W)
	assert.Equal(t, 10, got.H)
}

func TestVariant_UpscaleMapsBackToSource(t *testing.T) {
	p := New(Config{})
	src, err := p.Decode(pngBytes(t, 100, 60))
	require.NoError(t, err)

	spec := &doctype.FieldSpec{Field: domain.FieldDateOfBirth, Kind: domain.KindDate}
	vs := p.Variants(src, spec, true)
	require.Equal(t, "upscale2x+sharpen+otsu", vs[0].Recipe.Name)

	img, err := vs[0].Render()
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())

	got := vs[0].ToSource(domain.Box{X: 40, Y: 20, W: 60, H: 20})
	assert.Equal(t, domain.Box{X: 20, Y: 10, W: 30, H: 10}, got)
}

func TestVariant_ToSourceClamps(t *testing.T) {
	p := New(Config{})
	src, err := p.Decode(pngBytes(t, 50, 50))
	require.NoError(t, err)
	spec := &doctype.FieldSpec{Field: domain.FieldGender, Kind: domain.KindGeneric}
	vs := p.Variants(src, spec, false)
	last := vs[len(vs)-1]
	_, err = last.Render()
	require.NoError(t, err)

	got := last.ToSource(domain.Box{X: 40, Y: -5, W: 30, H: 20})
	assert.Equal(t, domain.Box{X: 40, Y: 0, W: 10, H: 15}, got)
}

func TestRotationInverse_CentreIsFixed(t *testing.T) {
	inv := rotationInverse(4, 100, 50, 110, 60)
	x, y := inv(55, 30)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 25, y, 1e-9)
}
