// generator.go implements the Generator organism: the end-to-end pipeline
// from character configuration to finished image bytes.
//
// This organism composes:
//   - PromptBuilder: deterministic prompt assembly
//   - Provider: OpenAI-compatible image generation
//   - Downloader: fetching generated images from temporary URLs
//   - chroma.go: background removal
//   - logging.Logger: structured operation tracking
//
// Credit accounting and persistence live outside this package; the
// Generator is a pure pipeline from config to bytes.
package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"charforge/charclient"
	"charforge/core"
	"charforge/logging"
)

// Result is the outcome of one generation.
type Result struct {
	// ImageData is the finished image, PNG-encoded when transparent.
	ImageData []byte

	// Transparent reports whether background removal succeeded. A
	// transparent request can still yield an opaque image when the mask
	// pass degrades.
	Transparent bool

	// Prompt is the base prompt sent to the model.
	Prompt string
}

// Generator orchestrates prompt construction, model calls, download, and
// background removal.
//
// Thread Safety: Generator is safe for concurrent use.
type Generator struct {
	provider   Provider
	downloader *Downloader
	prompts    *PromptBuilder
	logger     *logging.Logger
}

// NewGenerator creates a generation pipeline.
//
// Returns an error if any required component is nil.
func NewGenerator(provider Provider, downloader *Downloader, logger *logging.Logger) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("imagegen: provider cannot be nil")
	}
	if downloader == nil {
		return nil, fmt.Errorf("imagegen: downloader cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}

	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}

	return &Generator{
		provider:   provider,
		downloader: downloader,
		prompts:    prompts,
		logger:     logger.Named("generator"),
	}, nil
}

// Generate runs the full pipeline for config.
//
// When config.Transparent is set, a second mask image is generated against
// the chroma key background and both images are downloaded concurrently;
// the mask then drives the alpha pass. Any failure on the mask path only
// degrades the result to opaque. A failure on the base image path is a
// GenerationError.
func (g *Generator) Generate(ctx context.Context, config charclient.CharacterConfig) (*Result, error) {
	prompt := g.prompts.Build(config)
	log := g.logger.With(zap.Bool("transparent", config.Transparent))
	log.Info("starting generation", zap.Int("prompt_length", len(prompt)))

	baseURL, err := g.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, &core.GenerationError{Message: "image model call failed", Err: err}
	}

	maskURL := ""
	if config.Transparent {
		url, maskErr := g.provider.Generate(ctx, g.prompts.BuildMask(prompt))
		if maskErr != nil {
			log.Warn("mask generation failed, continuing opaque", zap.Error(maskErr))
		} else {
			maskURL = url
		}
	}

	var baseData, maskData []byte
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		data, dlErr := g.downloader.DownloadBytes(groupCtx, baseURL)
		if dlErr != nil {
			return dlErr
		}
		baseData = data
		return nil
	})
	if maskURL != "" {
		group.Go(func() error {
			data, dlErr := g.downloader.DownloadBytes(groupCtx, maskURL)
			if dlErr != nil {
				// Mask download failure must not abort the base download.
				log.Warn("mask download failed, continuing opaque", zap.Error(dlErr))
				return nil
			}
			maskData = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, &core.GenerationError{Message: "failed to download generated image", Err: err}
	}

	imageData := baseData
	transparent := false
	if config.Transparent && maskData != nil {
		out, ok, rmErr := RemoveBackground(baseData, maskData)
		if rmErr != nil {
			log.Warn("background removal failed, continuing opaque", zap.Error(rmErr))
		} else {
			imageData = out
			transparent = ok
		}
	}

	log.Info("generation complete",
		zap.Int("image_bytes", len(imageData)),
		zap.Bool("transparency_applied", transparent))

	return &Result{
		ImageData:   imageData,
		Transparent: transparent,
		Prompt:      prompt,
	}, nil
}
