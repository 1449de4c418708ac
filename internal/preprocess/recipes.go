package preprocess

import "github.com/MeKo-Tech/kycscan/internal/domain"

// Op is a single image transform step.
type Op string

const (
	OpDeskew    Op = "deskew"
	OpContrast  Op = "contrast"
	OpOtsu      Op = "otsu"
	OpGrayscale Op = "grayscale"
	OpDenoise   Op = "denoise"
	OpAdaptive  Op = "adaptive"
	OpROICrop   Op = "roi-crop"
	OpUpscale   Op = "upscale2x"
	OpSharpen   Op = "sharpen"
)

// Recipe is an ordered list of ops. Aggressiveness ranks how far the result
// drifts from the source; 0 is the untouched source.
type Recipe struct {
	Name           string
	Ops            []Op
	Aggressiveness int
	Relaxed        bool
}

// UsesROI reports whether the recipe crops to a field zone.
func (r Recipe) UsesROI() bool {
	for _, op := range r.Ops {
		if op == OpROICrop {
			return true
		}
	}
	return false
}

func recipe(aggr int, ops ...Op) Recipe {
	name := "source"
	if len(ops) > 0 {
		name = string(ops[0])
		for _, op := range ops[1:] {
			name += "+" + string(op)
		}
	}
	return Recipe{Name: name, Ops: ops, Aggressiveness: aggr}
}

// SourceRecipe is the mildest recipe and closes every list.
var SourceRecipe = recipe(0)

var kindRecipes = map[domain.FieldKind][]Recipe{
	domain.KindDate: {
		recipe(2, OpDeskew, OpContrast, OpOtsu),
		recipe(1, OpDeskew, OpGrayscale),
		SourceRecipe,
	},
	domain.KindName: {
		recipe(2, OpDenoise, OpAdaptive),
		recipe(1, OpDenoise, OpGrayscale),
		SourceRecipe,
	},
	domain.KindAddress: {
		recipe(2, OpDenoise, OpAdaptive),
		recipe(1, OpDenoise, OpGrayscale),
		SourceRecipe,
	},
	domain.KindIDNumber: {
		recipe(2, OpROICrop, OpOtsu),
		recipe(1, OpROICrop, OpGrayscale),
		SourceRecipe,
	},
	domain.KindGeneric: {
		recipe(1, OpGrayscale, OpContrast),
		SourceRecipe,
	},
}

// Without a zone an ID number falls back to the whole-image equivalents.
var idNoZoneRecipes = []Recipe{
	recipe(2, OpOtsu),
	recipe(1, OpGrayscale),
	SourceRecipe,
}

var relaxedRecipes = []Recipe{
	relaxed(recipe(4, OpUpscale, OpSharpen, OpOtsu)),
	relaxed(recipe(3, OpUpscale, OpAdaptive)),
}

func relaxed(r Recipe) Recipe {
	r.Relaxed = true
	return r
}

// RecipesFor returns the recipe list for a field kind, most aggressive first.
// hasZone selects ROI cropping for ID numbers. The relaxed list prepends the
// extra recipes used only by the fallback pass.
func RecipesFor(kind domain.FieldKind, hasZone, relaxedPass bool) []Recipe {
	base, ok := kindRecipes[kind]
	if !ok {
		base = kindRecipes[domain.KindGeneric]
	}
	if kind == domain.KindIDNumber && !hasZone {
		base = idNoZoneRecipes
	}
	if !relaxedPass {
		return append([]Recipe(nil), base...)
	}
	out := make([]Recipe, 0, len(relaxedRecipes)+len(base))
	out = append(out, relaxedRecipes...)
	return append(out, base...)
}
