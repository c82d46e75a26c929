// Package imagegen implements the server-side character image pipeline:
// prompt construction, image model invocation, image download, and
// chroma-key background removal.
//
// vocab.go implements the vocabulary atom: the embedded prompt lookup
// tables that map enumerated config values to natural-language fragments.
package imagegen

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var vocabularyYAML []byte

// category is one attribute lookup table. Unknown values resolve to the
// category default so prompt assembly never fails on unrecognized input.
type category struct {
	Default   string            `yaml:"default"`
	Fragments map[string]string `yaml:"fragments"`
}

// fragment returns the prompt fragment for value, falling back to the
// category default.
func (c category) fragment(value string) string {
	if f, ok := c.Fragments[value]; ok {
		return f
	}
	return c.Default
}

// vocabulary holds every lookup table parsed from vocabulary.yaml.
type vocabulary struct {
	Gender             category   `yaml:"gender"`
	SkinTone           category   `yaml:"skinTone"`
	HairStyle          category   `yaml:"hairStyle"`
	HairColor          category   `yaml:"hairColor"`
	Clothing           category   `yaml:"clothing"`
	ClothingColor      category   `yaml:"clothingColor"`
	EyeColor           category   `yaml:"eyeColor"`
	Accessories        category   `yaml:"accessories"`
	AccessoryConflicts [][]string `yaml:"accessoryConflicts"`
	Expressions        []string   `yaml:"expressions"`
}

// loadVocabulary parses the embedded vocabulary tables. The file ships
// inside the binary, so a parse failure is a build defect rather than a
// runtime condition.
func loadVocabulary() (*vocabulary, error) {
	var v vocabulary
	if err := yaml.Unmarshal(vocabularyYAML, &v); err != nil {
		return nil, fmt.Errorf("imagegen: failed to parse embedded vocabulary: %w", err)
	}
	if len(v.Expressions) == 0 {
		return nil, fmt.Errorf("imagegen: embedded vocabulary has no expressions")
	}
	return &v, nil
}
