package webtoonquiz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// NewImage validates an uploaded file and wraps it as an Image. The media
// type is sniffed from the bytes, not taken from the file name.
func NewImage(name string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, &ValidationError{Field: "image", Message: fmt.Sprintf("%s is empty", name)}
	}
	if len(data) > MaxImageBytes {
		return Image{}, &ValidationError{Field: "image", Message: fmt.Sprintf("%s is too large (max %d MB)", name, MaxImageBytes/(1024*1024))}
	}

	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, &ValidationError{Field: "image", Message: fmt.Sprintf("%s is not an image (%s)", name, mediaType)}
	}

	sum := sha256.Sum256(data)
	return Image{
		ID:        uuid.NewString()[:8],
		Name:      name,
		MediaType: mediaType,
		Hash:      hex.EncodeToString(sum[:]),
		Data:      data,
	}, nil
}

// LoadImageFile reads an image from disk.
func LoadImageFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return NewImage(filepath.Base(path), data)
}

// ImagePool holds the screenshots uploaded for the next generation, in
// upload order. Identical bytes are kept once.
type ImagePool struct {
	Items []Image
}

// Add appends img unless an image with the same content is already
// present. It reports whether the pool changed.
func (p ImagePool) Add(img Image) (ImagePool, bool) {
	for _, existing := range p.Items {
		if existing.Hash == img.Hash {
			VerboseLog("Skipping duplicate upload %s (same content as %s)", img.Name, existing.Name)
			return p, false
		}
	}
	items := make([]Image, len(p.Items), len(p.Items)+1)
	copy(items, p.Items)
	return ImagePool{Items: append(items, img)}, true
}

// Remove drops the image with the given id.
func (p ImagePool) Remove(id string) (ImagePool, bool) {
	for i, img := range p.Items {
		if img.ID == id {
			items := make([]Image, 0, len(p.Items)-1)
			items = append(items, p.Items[:i]...)
			items = append(items, p.Items[i+1:]...)
			return ImagePool{Items: items}, true
		}
	}
	return p, false
}

// Size returns the number of images in the pool
func (p ImagePool) Size() int {
	return len(p.Items)
}

// IsEmpty returns true if the pool is empty
func (p ImagePool) IsEmpty() bool {
	return p.Size() == 0
}
