package playback

import (
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/settings"
)

// Mode is the delivery decision for one session.
type Mode string

const (
	DirectPlay Mode = "direct_play"
	Remux      Mode = "remux"
	Transcode  Mode = "transcode"
)

// Plan is the stream plan returned to the client alongside the playback URL.
type Plan struct {
	Mode                   Mode   `json:"mode"`
	Container              string `json:"container"`
	VideoCodec             string `json:"video_codec"`
	AudioCodec             string `json:"audio_codec"`
	SegmentDurationSeconds int    `json:"segment_duration_seconds"`
	SeekRequiresReload     bool   `json:"seek_requires_reload"`
	HardwareAcceleration   string `json:"hardware_acceleration,omitempty"`
	CapabilityMismatch     bool   `json:"capability_mismatch,omitempty"`
	ToneMapHDR             bool   `json:"tone_map_hdr,omitempty"`
}

// SelectPart picks the part best matching the client's ceiling: the highest
// bitrate that fits under MaxBitrateKbps, else the lowest available.
func SelectPart(parts []database.MediaPart, profile *CapabilityProfile) (*database.MediaPart, error) {
	if len(parts) == 0 {
		return nil, errs.E(errs.FailedPrecondition, "item has no playable media parts")
	}
	var best, smallest *database.MediaPart
	for i := range parts {
		p := &parts[i]
		if smallest == nil || p.BitrateKbps < smallest.BitrateKbps {
			smallest = p
		}
		if profile.MaxBitrateKbps > 0 && p.BitrateKbps > profile.MaxBitrateKbps {
			continue
		}
		if best == nil || p.BitrateKbps > best.BitrateKbps {
			best = p
		}
	}
	if best == nil {
		best = smallest
	}
	return best, nil
}

// BuildPlan decides direct play, remux, or transcode for a part against a
// capability profile.
func BuildPlan(part *database.MediaPart, profile *CapabilityProfile, opts settings.TranscodeOptions) Plan {
	segment := opts.SegmentDurationSeconds
	if segment <= 0 {
		segment = 6
	}

	videoOK := part.VideoCodec != "" && profile.supportsVideo(part.VideoCodec)
	audioOK := part.AudioCodec != "" && profile.supportsAudio(part.AudioCodec)
	containerOK := part.Container != "" && profile.supportsContainer(part.Container)
	bitrateOK := profile.MaxBitrateKbps <= 0 || part.BitrateKbps <= profile.MaxBitrateKbps
	hdrOK := !part.HasHDR || profile.SupportsHDR

	switch {
	case videoOK && audioOK && containerOK && bitrateOK && hdrOK:
		return Plan{
			Mode:               DirectPlay,
			Container:          part.Container,
			VideoCodec:         part.VideoCodec,
			AudioCodec:         part.AudioCodec,
			SeekRequiresReload: false,
		}
	case videoOK && audioOK && bitrateOK && hdrOK:
		// Streams are fine, only the container is not: repackage without
		// re-encoding.
		return Plan{
			Mode:                   Remux,
			Container:              "mp4",
			VideoCodec:             part.VideoCodec,
			AudioCodec:             part.AudioCodec,
			SegmentDurationSeconds: segment,
			SeekRequiresReload:     false,
		}
	default:
		hw := opts.HardwareAcceleration
		if hw == "" {
			hw = settings.HWAccelNone
		}
		plan := Plan{
			Mode:                   Transcode,
			Container:              "mp4",
			VideoCodec:             opts.VideoCodec,
			AudioCodec:             opts.AudioCodec,
			SegmentDurationSeconds: segment,
			SeekRequiresReload:     true,
			ToneMapHDR:             part.HasHDR && !profile.SupportsHDR && opts.ToneMapping,
		}
		if hw != settings.HWAccelNone {
			plan.HardwareAcceleration = hw
		}
		return plan
	}
}
