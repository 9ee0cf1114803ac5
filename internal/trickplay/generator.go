package trickplay

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/settings"
)

// Generator produces one BIF file per media part by sampling frames with the
// external transcoder.
type Generator struct {
	cfg      config.TranscodeConfig
	dataDir  string
	parts    *catalog.PartRepository
	settings *settings.Store
}

func NewGenerator(cfg config.TranscodeConfig, dataDir string, parts *catalog.PartRepository, store *settings.Store) *Generator {
	return &Generator{cfg: cfg, dataDir: dataDir, parts: parts, settings: store}
}

// Path returns where the part's BIF file lives.
func (g *Generator) Path(partUUID string) string {
	return filepath.Join(g.dataDir, "trickplay", partUUID+".bif")
}

// ProcessItem generates trickplay previews for every video part of the item.
func (g *Generator) ProcessItem(ctx context.Context, itemID uint) error {
	parts, err := g.parts.ForItem(itemID)
	if err != nil {
		return err
	}
	opts, err := g.settings.Trickplay()
	if err != nil {
		return err
	}
	for _, part := range parts {
		if err := g.generate(ctx, part.Path, part.UUID, opts); err != nil {
			logger.Warn("trickplay generation failed", "part", part.UUID, "error", err)
		}
	}
	return nil
}

func (g *Generator) generate(ctx context.Context, mediaPath, partUUID string, opts settings.TrickplayOptions) error {
	target := g.Path(partUUID)
	if opts.SkipExisting {
		if _, err := os.Stat(target); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	frameDir, err := os.MkdirTemp("", "nexa-trickplay-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(frameDir)

	interval := opts.SnapshotIntervalMs
	if interval <= 0 {
		interval = 2000
	}
	fps := fmt.Sprintf("1000/%d", interval)
	quality := jpegQScale(opts.JpegQuality)

	cmd := exec.CommandContext(ctx, g.cfg.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", mediaPath,
		"-vf", fmt.Sprintf("fps=%s,scale=%d:-2", fps, opts.MaxSnapshotWidth),
		"-q:v", strconv.Itoa(quality),
		filepath.Join(frameDir, "frame-%06d.jpg"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("frame extraction: %w: %s", err, stderr.String())
	}

	frames, err := collectFrames(frameDir, uint32(interval))
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no frames produced for %s", mediaPath)
	}

	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Encode(out, frames); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

func collectFrames(dir string, intervalMs uint32) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".jpg" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]Frame, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{TimestampMs: uint32(i) * intervalMs, JPEG: data})
	}
	return frames, nil
}

// jpegQScale maps a 0-100 quality to ffmpeg's inverted 2-31 qscale range.
func jpegQScale(quality int) int {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	q := 31 - (quality*29)/100
	if q < 2 {
		q = 2
	}
	return q
}
