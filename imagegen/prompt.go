// prompt.go implements the PromptBuilder molecule: deterministic assembly
// of the image model prompt from a character configuration.
//
// This molecule composes:
//   - vocab.go: embedded fragment lookup tables
//   - charclient.CharacterConfig: the shared configuration wire type
//
// Every fragment of the assembled prompt is a pure function of the config
// except the expression, which is chosen at random. The random choice is
// isolated behind an injectable index function so the rest of the prompt
// can be asserted byte-identical across calls.
package imagegen

import (
	"fmt"
	"math/rand"
	"strings"

	"charforge/charclient"
)

// ChromaKeyColor is the background color the mask image is generated with.
// RemoveBackground keys on the same color.
const ChromaKeyColor = "pure bright green (#00FF00)"

// PromptBuilder assembles generation prompts from character configurations.
//
// Thread Safety: PromptBuilder is safe for concurrent use after
// construction. The expression index function must be safe for concurrent
// use; the default (math/rand top-level) is.
type PromptBuilder struct {
	vocab *vocabulary

	// expressionIndex picks the expression fragment: given the table size n
	// it returns an index in [0, n). Injectable for deterministic tests.
	expressionIndex func(n int) int
}

// NewPromptBuilder creates a PromptBuilder backed by the embedded
// vocabulary tables.
func NewPromptBuilder() (*PromptBuilder, error) {
	vocab, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{
		vocab:           vocab,
		expressionIndex: rand.Intn,
	}, nil
}

// Build assembles the full generation prompt for config.
//
// Fragment order is fixed: subject, skin tone, hair, eyes, clothing,
// accessories, expression, suppression constraints. Two calls with
// deep-equal configs differ at most in the expression fragment.
func (b *PromptBuilder) Build(config charclient.CharacterConfig) string {
	var parts []string

	subject := b.vocab.Gender.fragment(config.Gender)
	if age := strings.TrimSpace(config.AgeGroup); age != "" {
		subject = fmt.Sprintf("%s, %s", subject, age)
	}
	parts = append(parts,
		fmt.Sprintf("A high quality digital illustration of %s", subject),
		b.vocab.SkinTone.fragment(config.SkinTone),
		fmt.Sprintf("%s, colored %s",
			b.vocab.HairStyle.fragment(config.HairStyle),
			b.vocab.HairColor.fragment(config.HairColor)),
		fmt.Sprintf("with %s eyes", b.vocab.EyeColor.fragment(config.EyeColor)),
		fmt.Sprintf("dressed in a %s %s",
			b.vocab.ClothingColor.fragment(config.ClothingColor),
			b.vocab.Clothing.fragment(config.Clothing)),
	)

	requested := NormalizeAccessories(config.Accessories, b.vocab.AccessoryConflicts)
	for _, item := range requested {
		parts = append(parts, b.vocab.Accessories.fragment(item))
	}

	parts = append(parts, b.vocab.Expressions[b.expressionIndex(len(b.vocab.Expressions))])
	parts = append(parts, b.suppressionFragments(requested)...)
	parts = append(parts, "no text, no watermark, no logo")

	return strings.Join(parts, ", ")
}

// BuildMask derives the chroma mask prompt from an already-built base
// prompt: the identical character description with an instruction to paint
// the background in the chroma key color. Taking the built prompt rather
// than the config keeps the mask's expression fragment in sync with the
// base image.
func (b *PromptBuilder) BuildMask(basePrompt string) string {
	return basePrompt +
		", the entire background is a solid uniform " + ChromaKeyColor +
		", the subject is fully in frame and does not contain any green"
}

// suppressionFragments returns "no X" constraints for every known accessory
// that was not requested, so the model does not improvise extras.
func (b *PromptBuilder) suppressionFragments(requested []string) []string {
	have := make(map[string]bool, len(requested))
	for _, item := range requested {
		have[item] = true
	}

	suppress := []string{"glasses", "hat", "jewelry"}
	byGroup := map[string][]string{
		"glasses": {"glasses", "sunglasses"},
		"hat":     {"cap", "beanie"},
		"jewelry": {"earrings"},
	}

	var fragments []string
	for _, group := range suppress {
		wanted := false
		for _, member := range byGroup[group] {
			if have[member] {
				wanted = true
				break
			}
		}
		if !wanted {
			fragments = append(fragments, "no "+group)
		}
	}
	return fragments
}

// NormalizeAccessories prepares a requested accessory list for prompt
// assembly: the "none" sentinel is dropped, duplicates are removed, and
// conflicting pairs are resolved first-seen-wins, so an item is kept unless
// a conflicting item already appeared earlier in the list. Input order is
// preserved for the survivors.
func NormalizeAccessories(accessories []string, conflicts [][]string) []string {
	conflictsWith := func(a, b string) bool {
		for _, group := range conflicts {
			inGroupA, inGroupB := false, false
			for _, member := range group {
				if member == a {
					inGroupA = true
				}
				if member == b {
					inGroupB = true
				}
			}
			if inGroupA && inGroupB {
				return true
			}
		}
		return false
	}

	var kept []string
	for _, item := range accessories {
		if item == "none" || item == "" {
			continue
		}
		blocked := false
		for _, earlier := range kept {
			if earlier == item || conflictsWith(earlier, item) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, item)
		}
	}
	return kept
}
