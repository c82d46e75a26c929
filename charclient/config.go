// Package charclient provides the CharacterForge SDK: a generation client
// that composes cache lookup, bounded retry with exponential backoff, and
// cache store around the remote /generate-character endpoint.
//
// config.go defines the CharacterConfig value object, its fixed attribute
// vocabularies, and the canonical cache key serialization.
package charclient

import (
	"encoding/json"
	"sort"

	"charforge/core"
)

// CharacterConfig describes the visual attributes of a character to
// generate. It is an immutable value object: two configs that are deep-equal
// apart from field order produce the same cache key.
//
// Every field except AgeGroup and NoCache must be one of a fixed vocabulary;
// Validate reports the first violation. Accessories may contain mutually
// exclusive identifiers (glasses/sunglasses, cap/beanie) which the server
// resolves first-seen-wins before prompting the model.
type CharacterConfig struct {
	Gender        string   `json:"gender" validate:"required"`
	AgeGroup      string   `json:"ageGroup,omitempty"`
	SkinTone      string   `json:"skinTone" validate:"required"`
	HairStyle     string   `json:"hairStyle" validate:"required"`
	HairColor     string   `json:"hairColor" validate:"required"`
	Clothing      string   `json:"clothing" validate:"required"`
	ClothingColor string   `json:"clothingColor" validate:"required"`
	EyeColor      string   `json:"eyeColor" validate:"required"`
	Accessories   []string `json:"accessories" validate:"max=4"`
	Transparent   bool     `json:"transparent"`

	// NoCache opts this call out of client-side caching. It is excluded from
	// the canonical serialization so it never affects cache identity.
	NoCache bool `json:"noCache,omitempty"`
}

// Attribute vocabularies. These mirror the options offered by the web app
// and the Figma plugin; the server falls back to per-category defaults for
// values it does not recognize, but the client rejects them up front.
var (
	genderVocab        = vocab("female", "male", "nonbinary")
	skinToneVocab      = vocab("light", "medium", "tan", "dark")
	hairStyleVocab     = vocab("bob", "short", "long", "curly", "ponytail", "bun", "buzz", "afro")
	hairColorVocab     = vocab("blonde", "brown", "black", "red", "gray", "blue", "pink")
	clothingVocab      = vocab("hoodie", "tshirt", "dress", "suit", "jacket", "sweater")
	clothingColorVocab = vocab("pink", "red", "blue", "green", "black", "white", "yellow", "purple")
	eyeColorVocab      = vocab("blue", "green", "brown", "hazel", "gray")
	accessoryVocab     = vocab("none", "glasses", "sunglasses", "cap", "beanie", "earrings", "scarf", "headphones")
)

func vocab(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Validate checks every enumerated field against its vocabulary and returns
// a ConfigValidationError for the first violation. AgeGroup is free-form and
// never validated. Validation happens before any network call.
func (c CharacterConfig) Validate() error {
	checks := []struct {
		field string
		value string
		vocab map[string]bool
	}{
		{"gender", c.Gender, genderVocab},
		{"skinTone", c.SkinTone, skinToneVocab},
		{"hairStyle", c.HairStyle, hairStyleVocab},
		{"hairColor", c.HairColor, hairColorVocab},
		{"clothing", c.Clothing, clothingVocab},
		{"clothingColor", c.ClothingColor, clothingColorVocab},
		{"eyeColor", c.EyeColor, eyeColorVocab},
	}

	for _, check := range checks {
		if check.value == "" {
			return &core.ConfigValidationError{
				Field:   check.field,
				Value:   check.value,
				Message: "value is required",
			}
		}
		if !check.vocab[check.value] {
			return &core.ConfigValidationError{
				Field:   check.field,
				Value:   check.value,
				Message: "not in the allowed vocabulary",
			}
		}
	}

	for _, acc := range c.Accessories {
		if !accessoryVocab[acc] {
			return &core.ConfigValidationError{
				Field:   "accessories",
				Value:   acc,
				Message: "not in the allowed vocabulary",
			}
		}
	}

	return nil
}

// CacheKey returns the canonical serialization of the config: a JSON object
// with keys sorted and the NoCache flag excluded. Two configs are
// cache-equivalent iff their CacheKey values are identical.
//
// json.Marshal over a map already emits keys in sorted order; the map is
// built explicitly so every cache-relevant field is always present, keeping
// keys stable even when optional fields are zero.
func (c CharacterConfig) CacheKey() string {
	accessories := c.Accessories
	if accessories == nil {
		accessories = []string{}
	}

	canonical := map[string]interface{}{
		"gender":        c.Gender,
		"ageGroup":      c.AgeGroup,
		"skinTone":      c.SkinTone,
		"hairStyle":     c.HairStyle,
		"hairColor":     c.HairColor,
		"clothing":      c.Clothing,
		"clothingColor": c.ClothingColor,
		"eyeColor":      c.EyeColor,
		"accessories":   accessories,
		"transparent":   c.Transparent,
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshaling a map of strings and bools cannot fail; this branch
		// exists to satisfy the error contract.
		return ""
	}
	return string(data)
}

// Vocabulary returns the sorted allowed values for an attribute category.
// Unknown categories return nil. Exposed so UI layers can build pickers from
// the same source of truth the validator uses.
func Vocabulary(category string) []string {
	var m map[string]bool
	switch category {
	case "gender":
		m = genderVocab
	case "skinTone":
		m = skinToneVocab
	case "hairStyle":
		m = hairStyleVocab
	case "hairColor":
		m = hairColorVocab
	case "clothing":
		m = clothingVocab
	case "clothingColor":
		m = clothingColorVocab
	case "eyeColor":
		m = eyeColorVocab
	case "accessories":
		m = accessoryVocab
	default:
		return nil
	}

	values := make([]string, 0, len(m))
	for v := range m {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
