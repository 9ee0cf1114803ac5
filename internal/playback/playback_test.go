package playback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/settings"
)

func h264Profile() *CapabilityProfile {
	return &CapabilityProfile{
		Version:        1,
		Containers:     []string{"mp4"},
		VideoCodecs:    []string{"h264"},
		AudioCodecs:    []string{"aac"},
		MaxBitrateKbps: 20000,
	}
}

func moviePart(container, video, audio string, kbps int) *database.MediaPart {
	return &database.MediaPart{
		Container:   container,
		VideoCodec:  video,
		AudioCodec:  audio,
		BitrateKbps: kbps,
		DurationMs:  2 * 60 * 60 * 1000,
	}
}

func TestBuildPlanDirectPlayWhenEverythingSupported(t *testing.T) {
	plan := BuildPlan(moviePart("mp4", "h264", "aac", 8000), h264Profile(), settings.DefaultTranscode())
	assert.Equal(t, DirectPlay, plan.Mode)
	assert.Equal(t, "mp4", plan.Container)
	assert.False(t, plan.SeekRequiresReload)
}

func TestBuildPlanRemuxWhenOnlyContainerUnsupported(t *testing.T) {
	plan := BuildPlan(moviePart("mkv", "h264", "aac", 8000), h264Profile(), settings.DefaultTranscode())
	assert.Equal(t, Remux, plan.Mode)
	assert.Equal(t, "mp4", plan.Container)
	assert.Equal(t, "h264", plan.VideoCodec, "remux must not re-encode")
	assert.False(t, plan.SeekRequiresReload)
}

func TestBuildPlanTranscodeWhenCodecUnsupported(t *testing.T) {
	opts := settings.DefaultTranscode()
	opts.HardwareAcceleration = settings.HWAccelVAAPI
	plan := BuildPlan(moviePart("mkv", "hevc", "dts", 8000), h264Profile(), opts)
	assert.Equal(t, Transcode, plan.Mode)
	assert.Equal(t, opts.VideoCodec, plan.VideoCodec)
	assert.True(t, plan.SeekRequiresReload)
	assert.Equal(t, settings.HWAccelVAAPI, plan.HardwareAcceleration)
}

func TestBuildPlanTranscodeWhenBitrateTooHigh(t *testing.T) {
	profile := h264Profile()
	profile.MaxBitrateKbps = 4000
	plan := BuildPlan(moviePart("mp4", "h264", "aac", 12000), profile, settings.DefaultTranscode())
	assert.Equal(t, Transcode, plan.Mode)
}

func TestBuildPlanToneMapsHDRForSDRClient(t *testing.T) {
	part := moviePart("mp4", "h264", "aac", 8000)
	part.HasHDR = true
	opts := settings.DefaultTranscode()
	opts.ToneMapping = true
	plan := BuildPlan(part, h264Profile(), opts)
	assert.Equal(t, Transcode, plan.Mode)
	assert.True(t, plan.ToneMapHDR)

	// An HDR-capable client direct plays the same part.
	hdrProfile := h264Profile()
	hdrProfile.SupportsHDR = true
	plan = BuildPlan(part, hdrProfile, opts)
	assert.Equal(t, DirectPlay, plan.Mode)
}

func TestSelectPartPrefersHighestBitrateUnderCap(t *testing.T) {
	parts := []database.MediaPart{
		{ID: 1, BitrateKbps: 4000},
		{ID: 2, BitrateKbps: 12000},
		{ID: 3, BitrateKbps: 25000},
	}
	profile := h264Profile()

	part, err := SelectPart(parts, profile)
	require.NoError(t, err)
	assert.Equal(t, uint(2), part.ID)

	// Nothing fits under the cap: fall back to the lowest.
	profile.MaxBitrateKbps = 1000
	part, err = SelectPart(parts, profile)
	require.NoError(t, err)
	assert.Equal(t, uint(1), part.ID)

	_, err = SelectPart(nil, profile)
	require.Error(t, err)
	assert.Equal(t, errs.FailedPrecondition, errs.KindOf(err))
}

func TestProfileStoreDetectsVersionMismatch(t *testing.T) {
	store := NewProfileStore()
	store.Put("tv-living-room", CapabilityProfile{Version: 3, Containers: []string{"mp4"}})

	_, match := store.Get("tv-living-room", 3)
	assert.True(t, match)

	_, match = store.Get("tv-living-room", 2)
	assert.False(t, match, "stale claimed version must force a re-plan")

	// An older upload never replaces a newer stored profile.
	store.Put("tv-living-room", CapabilityProfile{Version: 1})
	profile, _ := store.Get("tv-living-room", 3)
	assert.Equal(t, 3, profile.Version)

	_, match = store.Get("unknown-device", 1)
	assert.False(t, match)
}

func TestSegmentCacheNeverOverwritesOutOfOrder(t *testing.T) {
	cache := newSegmentCache()

	cache.Put(0, []byte("seg0"))
	cache.Put(1, []byte("seg1"))
	cache.Put(5, []byte("seg5"))

	// A late write for an already-cached lower index is served but does not
	// replace the cached bytes.
	served := cache.Put(1, []byte("seg1-late"))
	assert.Equal(t, []byte("seg1"), served)
	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte("seg1"), got)

	// A lower index never cached before is stored normally after a seek.
	served = cache.Put(3, []byte("seg3"))
	assert.Equal(t, []byte("seg3"), served)
	got, ok = cache.Get(3)
	require.True(t, ok)
	assert.Equal(t, []byte("seg3"), got)

	assert.Equal(t, 5, cache.Len())
}

func TestManifestsCoverFullDuration(t *testing.T) {
	session := &Session{
		ID:         "s1",
		DurationMs: 20_000,
		Plan: Plan{
			Mode:                   Transcode,
			Container:              "mp4",
			VideoCodec:             "h264",
			AudioCodec:             "aac",
			SegmentDurationSeconds: 6,
		},
	}

	hls := RenderHLS(session)
	assert.True(t, strings.HasPrefix(hls, "#EXTM3U"))
	assert.Contains(t, hls, "#EXT-X-TARGETDURATION:6")
	// 20s at 6s segments is four segments, the last one short.
	assert.Contains(t, hls, "seg-3.m4s")
	assert.NotContains(t, hls, "seg-4.m4s")
	assert.Contains(t, hls, "#EXTINF:2.000,")
	assert.Contains(t, hls, "#EXT-X-ENDLIST")

	mpd := RenderDASH(session)
	assert.Contains(t, mpd, `mediaPresentationDuration="PT20.000S"`)
	assert.Contains(t, mpd, `media="seg-$Number$.m4s"`)
	assert.Contains(t, mpd, "avc1.640028")
}

func TestSegmentCountRoundsUp(t *testing.T) {
	assert.Equal(t, 1, segmentCount(1000, 6))
	assert.Equal(t, 1, segmentCount(6000, 6))
	assert.Equal(t, 2, segmentCount(6001, 6))
	assert.Equal(t, 4, segmentCount(20000, 6))
	assert.Equal(t, 1, segmentCount(0, 6))
}
