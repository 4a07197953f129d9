// Package thumbnail generates downscaled JPEG previews for image uploads.
// Generation is CPU- and memory-bound, so a resource gate rejects work while
// the host is saturated; callers treat that as a transient condition.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Common generation errors.
var (
	// ErrBusy is returned when host resources are too saturated to decode
	// and resize safely. Retryable.
	ErrBusy = errors.New("host too busy for thumbnail generation")

	// ErrUndecodable is returned when the image data cannot be decoded.
	// Not retryable; callers skip the thumbnail rather than fail the task.
	ErrUndecodable = errors.New("image data cannot be decoded")
)

// Resource thresholds above which generation is refused.
const (
	maxCPUPercent = 90.0
	maxMemPercent = 90.0
)

// JPEG quality for generated previews.
const jpegQuality = 85

// Generator produces bounded-size JPEG thumbnails.
type Generator struct {
	maxDim int
	logger *slog.Logger

	// checkResources is swappable for tests.
	checkResources func() error
}

// NewGenerator creates a generator producing thumbnails that fit within
// maxDim pixels on the longest side.
func NewGenerator(maxDim int, logger *slog.Logger) *Generator {
	g := &Generator{
		maxDim: maxDim,
		logger: logger.With("component", "thumbnail_generator"),
	}
	g.checkResources = g.hostResources
	return g
}

// CanThumbnail reports whether the sniffed MIME type is a raster image the
// generator can decode.
func CanThumbnail(mime string) bool {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"),
		strings.HasPrefix(mime, "image/png"),
		strings.HasPrefix(mime, "image/gif"),
		strings.HasPrefix(mime, "image/bmp"),
		strings.HasPrefix(mime, "image/tiff"):
		return true
	}
	return false
}

// Generate decodes data, fits it within the configured bounds preserving
// aspect ratio, and re-encodes it as JPEG.
func (g *Generator) Generate(data []byte) ([]byte, error) {
	if err := g.checkResources(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	thumb := imaging.Fit(img, g.maxDim, g.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	g.logger.Debug("generated thumbnail",
		"input_bytes", len(data),
		"output_bytes", buf.Len(),
		"bounds", thumb.Bounds())

	return buf.Bytes(), nil
}

// hostResources refuses work while the host is above the CPU or memory
// thresholds. Sampling errors are logged and ignored; a broken gauge must
// not stall the pipeline.
func (g *Generator) hostResources() error {
	if vm, err := mem.VirtualMemory(); err != nil {
		g.logger.Warn("failed to sample memory usage", "error", err)
	} else if vm.UsedPercent > maxMemPercent {
		return fmt.Errorf("%w: memory at %.1f%%", ErrBusy, vm.UsedPercent)
	}

	if pcts, err := cpu.Percent(0, false); err != nil {
		g.logger.Warn("failed to sample cpu usage", "error", err)
	} else if len(pcts) > 0 && pcts[0] > maxCPUPercent {
		return fmt.Errorf("%w: cpu at %.1f%%", ErrBusy, pcts[0])
	}

	return nil
}
