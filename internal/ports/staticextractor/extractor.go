// Package staticextractor provides a deterministic ports.DescriptorExtractor
// stand-in. The AI vision extractor itself is an external collaborator
// out of scope for this pipeline; this adapter exists so IMAGE job items
// have something to resolve against in tests and local runs.
package staticextractor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// Extractor returns a generic descriptor derived only from a hash of the
// image bytes, never performing real vision inference.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Describe(ctx context.Context, imageBytes []byte, deadline time.Time) (model.NormalizedItem, error) {
	if len(imageBytes) == 0 {
		return model.NormalizedItem{}, fmt.Errorf("empty image payload")
	}
	sum := sha256.Sum256(imageBytes)
	return model.NormalizedItem{
		Title:    fmt.Sprintf("unidentified item %x", sum[:4]),
		Keywords: []string{"unidentified"},
	}, nil
}
