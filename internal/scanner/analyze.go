package scanner

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/spf13/cast"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
)

// Analyzer probes media files and records their stream attributes on the
// owning parts.
type Analyzer struct {
	ffprobePath string
	parts       *catalog.PartRepository
}

func NewAnalyzer(ffprobePath string, parts *catalog.PartRepository) *Analyzer {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Analyzer{ffprobePath: ffprobePath, parts: parts}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		PixFmt    string `json:"pix_fmt"`
		ColorTrc  string `json:"color_transfer"`
		Tags      struct {
			Language string `json:"language"`
		} `json:"tags"`
	} `json:"streams"`
}

// AnalyzeItem probes every part of the item. A part that fails to probe is
// logged and skipped so one broken file does not fail the whole item.
func (a *Analyzer) AnalyzeItem(ctx context.Context, itemID uint) error {
	parts, err := a.parts.ForItem(itemID)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return errs.Ef(errs.NotFound, "item %d has no media parts", itemID)
	}
	for _, part := range parts {
		if err := a.analyzePart(ctx, part.ID, part.Path); err != nil {
			logger.Warn("probe failed", "part", part.UUID, "path", part.Path, "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (a *Analyzer) analyzePart(ctx context.Context, partID uint, path string) error {
	cmd := exec.CommandContext(ctx, a.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return errs.E(errs.Unavailable, "run ffprobe", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return errs.E(errs.Internal, "parse ffprobe output", err)
	}

	updates := map[string]interface{}{
		"container": primaryContainer(probe.Format.FormatName),
	}
	if seconds := cast.ToFloat64(probe.Format.Duration); seconds > 0 {
		updates["duration_ms"] = int64(seconds * 1000)
	}
	if bps := cast.ToInt(probe.Format.BitRate); bps > 0 {
		updates["bitrate_kbps"] = bps / 1000
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if _, seen := updates["video_codec"]; seen {
				continue
			}
			updates["video_codec"] = stream.CodecName
			updates["width"] = stream.Width
			updates["height"] = stream.Height
			updates["has_hdr"] = isHDRTransfer(stream.ColorTrc)
		case "audio":
			if _, seen := updates["audio_codec"]; seen {
				continue
			}
			updates["audio_codec"] = stream.CodecName
			if stream.Tags.Language != "" {
				updates["audio_lang"] = stream.Tags.Language
			}
		}
	}

	return a.parts.UpdateStreams(partID, updates)
}

// primaryContainer picks the canonical name out of ffprobe's comma list, e.g.
// "mov,mp4,m4a,3gp,3g2,mj2" → "mp4" and "matroska,webm" → "mkv".
func primaryContainer(formatName string) string {
	switch {
	case strings.Contains(formatName, "mp4"):
		return "mp4"
	case strings.Contains(formatName, "matroska"):
		return "mkv"
	case strings.Contains(formatName, "webm"):
		return "webm"
	}
	if i := strings.IndexByte(formatName, ','); i > 0 {
		return formatName[:i]
	}
	return formatName
}

func isHDRTransfer(transfer string) bool {
	switch transfer {
	case "smpte2084", "arib-std-b67":
		return true
	}
	return false
}
