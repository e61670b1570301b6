package services

import (
	"regexp"
	"strings"
)

// ParsedIngredient is one ingredient line split into its parts. Raw is always
// preserved; Quantity and Unit stay empty when the line has no measurable
// amount ("salt to taste").
type ParsedIngredient struct {
	Raw      string
	Quantity string
	Unit     string
	Name     string
}

// IngredientRules parses free-text ingredient lines. Rule-based on purpose:
// the import path has to be deterministic and offline.
type IngredientRules interface {
	ParseLine(raw string) ParsedIngredient
}

type ingredientRules struct {
	units map[string]struct{}
}

// Unit vocabulary, singular form. Plurals and trailing periods are
// normalized before lookup.
var unitNames = []string{
	"cup", "tablespoon", "tbsp", "teaspoon", "tsp",
	"ounce", "oz", "pound", "lb", "gram", "g", "kilogram", "kg",
	"milliliter", "ml", "liter", "l",
	"pinch", "dash", "clove", "slice", "stick", "can", "jar",
	"package", "pkg", "bunch", "head", "sprig", "stalk", "piece",
}

func NewIngredientRules() IngredientRules {
	units := make(map[string]struct{}, len(unitNames))
	for _, u := range unitNames {
		units[u] = struct{}{}
	}
	return &ingredientRules{units: units}
}

// quantityRe matches a leading amount: integers, decimals, ASCII fractions,
// mixed numbers ("1 1/2"), unicode fraction glyphs, and ranges ("2-3").
var quantityRe = regexp.MustCompile(`^((\d+\s+\d+/\d+)|(\d+/\d+)|(\d+(\.\d+)?([-–]\d+(\.\d+)?)?)|([¼½¾⅓⅔⅛⅜⅝⅞])|(\d+\s*[¼½¾⅓⅔⅛⅜⅝⅞]))`)

var fractionGlyphs = map[rune]string{
	'¼': "1/4", '½': "1/2", '¾': "3/4",
	'⅓': "1/3", '⅔': "2/3",
	'⅛': "1/8", '⅜': "3/8", '⅝': "5/8", '⅞': "7/8",
}

func (r *ingredientRules) ParseLine(raw string) ParsedIngredient {
	out := ParsedIngredient{Raw: raw}
	line := strings.TrimSpace(raw)
	if line == "" {
		return out
	}

	if m := quantityRe.FindString(line); m != "" {
		out.Quantity = normalizeQuantity(m)
		line = strings.TrimSpace(line[len(m):])
	}

	if out.Quantity != "" {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if unit, ok := r.normalizeUnit(fields[0]); ok {
				out.Unit = unit
				line = strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
			}
		}
	}

	line = strings.TrimPrefix(line, "of ")
	out.Name = strings.TrimSpace(line)
	if out.Name == "" {
		out.Name = strings.TrimSpace(raw)
	}
	return out
}

func (r *ingredientRules) normalizeUnit(token string) (string, bool) {
	t := strings.ToLower(strings.TrimRight(token, ".,"))
	if _, ok := r.units[t]; ok {
		return t, true
	}
	if strings.HasSuffix(t, "s") {
		singular := strings.TrimSuffix(t, "s")
		if _, ok := r.units[singular]; ok {
			// Report plurals as written, minus punctuation.
			return t, true
		}
	}
	return "", false
}

func normalizeQuantity(m string) string {
	var b strings.Builder
	for _, r := range m {
		if ascii, ok := fractionGlyphs[r]; ok {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString(ascii)
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
