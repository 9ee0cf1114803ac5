// Package images transcodes artwork on demand: fetch the source, fit-resize,
// encode in the negotiated format, and cache the result on disk.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// avifEncoderAvailable gates AVIF negotiation. No AVIF encoder is linked, so
// Accept headers offering AVIF fall through to WebP.
const avifEncoderAvailable = false

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

// NegotiateFormat picks the output format. An explicit request wins; otherwise
// the Accept header is consulted, preferring AVIF over WebP over JPEG.
func NegotiateFormat(accept string, explicit string) (Format, error) {
	switch strings.ToLower(explicit) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "":
	default:
		return "", errs.Ef(errs.InvalidArgument, "unsupported image format %q", explicit)
	}
	if avifEncoderAvailable && strings.Contains(accept, "image/avif") {
		return FormatAVIF, nil
	}
	if strings.Contains(accept, "image/webp") {
		return FormatWebP, nil
	}
	return FormatJPEG, nil
}

// Request describes one transcode.
type Request struct {
	Source  string
	Width   int
	Height  int
	Quality int
	Format  Format
}

func (r Request) normalized() Request {
	if r.Quality <= 0 || r.Quality > 100 {
		r.Quality = 85
	}
	if r.Format == "" {
		r.Format = FormatJPEG
	}
	return r
}

// cacheKey is stable across restarts: source hash plus the transcode
// parameters.
func (r Request) cacheKey() string {
	sum := sha256.Sum256([]byte(r.Source))
	return fmt.Sprintf("%s-%dx%d-q%d.%s", hex.EncodeToString(sum[:16]), r.Width, r.Height, r.Quality, r.Format)
}

// Processor serves transcoded artwork from a disk cache, deduplicating
// concurrent misses for the same key.
type Processor struct {
	cacheDir string
	items    *catalog.ItemRepository
	client   *http.Client
	group    singleflight.Group
}

func NewProcessor(cacheDir string, items *catalog.ItemRepository) *Processor {
	return &Processor{
		cacheDir: cacheDir,
		items:    items,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcode returns the path of the cached output file for the request,
// producing it on a cache miss. Concurrent requests for the same key share one
// transcode.
func (p *Processor) Transcode(ctx context.Context, req Request) (string, error) {
	req = req.normalized()
	if req.Source == "" {
		return "", errs.E(errs.InvalidArgument, "image source is required")
	}
	cachePath := filepath.Join(p.cacheDir, req.cacheKey())
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	_, err, _ := p.group.Do(req.cacheKey(), func() (interface{}, error) {
		// Another flight may have filled the cache while we queued.
		if _, err := os.Stat(cachePath); err == nil {
			return nil, nil
		}
		src, err := p.load(ctx, req.Source)
		if err != nil {
			return nil, err
		}
		out, err := encode(resize(src, req.Width, req.Height), req.Format, req.Quality)
		if err != nil {
			return nil, err
		}
		return nil, writeAtomic(cachePath, out)
	})
	if err != nil {
		return "", err
	}
	return cachePath, nil
}

// load fetches the source image from a local path or an http(s) URL.
func (p *Processor) load(ctx context.Context, source string) (image.Image, error) {
	var reader io.ReadCloser
	switch {
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, errs.E(errs.InvalidArgument, "invalid image source", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, errs.E(errs.Unavailable, "fetch image source", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errs.Ef(errs.Unavailable, "fetch image source: status %d", resp.StatusCode)
		}
		reader = resp.Body
	default:
		path := strings.TrimPrefix(source, "file://")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errs.Ef(errs.NotFound, "image source %q", path)
			}
			return nil, errs.E(errs.Internal, "open image source", err)
		}
		reader = f
	}
	defer reader.Close()

	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, errs.E(errs.InvalidArgument, "decode image source", err)
	}
	return img, nil
}

// resize fits the image inside the requested box, preserving aspect ratio.
// Zero on both axes leaves the image untouched; zero on one axis scales
// proportionally.
func resize(img image.Image, width, height int) image.Image {
	switch {
	case width <= 0 && height <= 0:
		return img
	case width <= 0:
		return imaging.Resize(img, 0, height, imaging.Lanczos)
	case height <= 0:
		return imaging.Resize(img, width, 0, imaging.Lanczos)
	default:
		return imaging.Fit(img, width, height, imaging.Lanczos)
	}
}

func encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, errs.Ef(errs.Internal, "encode %s image: %v", format, err)
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.E(errs.Internal, "create image cache dir", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.E(errs.Internal, "write image cache entry", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.E(errs.Internal, "commit image cache entry", err)
	}
	return nil
}

// warmSizes are the variants pre-rendered by the image generation job so the
// first client hit is already cached.
var warmSizes = []struct {
	width, height int
}{
	{240, 360},
	{480, 720},
	{1280, 720},
}

// ProcessItem pre-renders the item's artwork variants into the cache. Missing
// or broken sources are logged and skipped.
func (p *Processor) ProcessItem(ctx context.Context, itemID uint) error {
	item, err := p.items.GetByID(itemID)
	if err != nil {
		return err
	}
	for _, source := range []string{item.ThumbURI, item.ArtURI, item.LogoURI} {
		if source == "" {
			continue
		}
		for _, size := range warmSizes {
			for _, format := range []Format{FormatWebP, FormatJPEG} {
				req := Request{Source: source, Width: size.width, Height: size.height, Format: format}
				if _, err := p.Transcode(ctx, req); err != nil {
					logger.Warn("skipping artwork variant", "item", item.UUID, "source", source, "error", err)
					break
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}
