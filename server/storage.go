// storage.go implements the ImageStore molecule: persisting finished
// images under random names and serving them back over HTTP.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charforge/imagegen"
	"charforge/logging"
)

// ThumbnailMaxDim is the longest side of a stored thumbnail.
const ThumbnailMaxDim = 256

// ImageStore persists generated images on disk and knows their public
// URLs. Images are content the user paid for, so unlike the client cache
// nothing here expires.
type ImageStore struct {
	dir     string
	baseURL string
	log     *logging.Logger
}

// NewImageStore creates the store, ensuring the directory exists.
// baseURL is the public prefix images are served under, without the
// /images path.
func NewImageStore(dir, baseURL string, logger *logging.Logger) (*ImageStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("server: image directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("server: failed to create image directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ImageStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.Named("images"),
	}, nil
}

// Save writes image data under a fresh random name and returns the name.
// A thumbnail is written alongside; thumbnail failures are logged, not
// fatal, since the full image is the product.
func (s *ImageStore) Save(data []byte) (string, error) {
	name := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("server: failed to write image: %w", err)
	}

	thumb, err := imagegen.Thumbnail(data, ThumbnailMaxDim)
	if err != nil {
		s.log.Warn("failed to build thumbnail", zap.String("image", name), zap.Error(err))
		return name, nil
	}
	thumbName := thumbnailName(name)
	if err := os.WriteFile(filepath.Join(s.dir, thumbName), thumb, 0644); err != nil {
		s.log.Warn("failed to write thumbnail", zap.String("image", thumbName), zap.Error(err))
	}
	return name, nil
}

// URL returns the public URL for a stored image name.
func (s *ImageStore) URL(name string) string {
	return s.baseURL + "/images/" + name
}

// ServeImage writes a stored image to the response and reports whether a
// file was actually delivered. The name comes from the URL path, so
// anything that is not a bare generated file name is rejected before
// touching the filesystem.
func (s *ImageStore) ServeImage(w http.ResponseWriter, r *http.Request, name string) bool {
	if !validImageName(name) {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "image not found"})
		return false
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "image not found"})
		return false
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
	return true
}

// thumbnailName derives a thumbnail file name from an image name.
func thumbnailName(name string) string {
	return strings.TrimSuffix(name, ".png") + ".thumb.png"
}

// validImageName accepts only the names Save produces: a UUID, optionally
// a .thumb infix, and a .png extension.
func validImageName(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	base := strings.TrimSuffix(name, ".thumb.png")
	base = strings.TrimSuffix(base, ".png")
	_, err := uuid.Parse(base)
	return err == nil
}
