package playback

import (
	"fmt"
	"strings"
)

// segmentCount returns how many segments cover the duration.
func segmentCount(durationMs int64, segmentSeconds int) int {
	if segmentSeconds <= 0 {
		segmentSeconds = 6
	}
	segMs := int64(segmentSeconds) * 1000
	n := int(durationMs / segMs)
	if durationMs%segMs != 0 || n == 0 {
		n++
	}
	return n
}

// RenderDASH renders the static MPD for a session. Segment URLs are relative
// to the manifest location.
func RenderDASH(s *Session) string {
	segment := s.Plan.SegmentDurationSeconds
	if segment <= 0 {
		segment = 6
	}
	durationSec := float64(s.DurationMs) / 1000

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" `+
		`mediaPresentationDuration="PT%.3fS" minBufferTime="PT%dS" `+
		`profiles="urn:mpeg:dash:profile:isoff-live:2011">`+"\n", durationSec, segment)
	fmt.Fprintf(&b, `  <Period duration="PT%.3fS">`+"\n", durationSec)
	fmt.Fprintf(&b, `    <AdaptationSet mimeType="video/%s" codecs="%s" segmentAlignment="true">`+"\n",
		s.Plan.Container, dashCodecs(s.Plan))
	fmt.Fprintf(&b, `      <SegmentTemplate media="seg-$Number$.m4s" duration="%d" timescale="1" startNumber="0"/>`+"\n",
		segment)
	b.WriteString("      <Representation id=\"0\" bandwidth=\"0\"/>\n")
	b.WriteString("    </AdaptationSet>\n")
	b.WriteString("  </Period>\n")
	b.WriteString("</MPD>\n")
	return b.String()
}

// RenderHLS renders the media playlist for a session.
func RenderHLS(s *Session) string {
	segment := s.Plan.SegmentDurationSeconds
	if segment <= 0 {
		segment = 6
	}
	count := segmentCount(s.DurationMs, segment)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segment)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXT-X-MAP:URI=%q\n", SegmentName(0))

	remainingMs := s.DurationMs
	segMs := int64(segment) * 1000
	for i := 0; i < count; i++ {
		length := segMs
		if remainingMs < segMs && remainingMs > 0 {
			length = remainingMs
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", float64(length)/1000, SegmentName(i))
		remainingMs -= segMs
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

func dashCodecs(plan Plan) string {
	video := plan.VideoCodec
	switch strings.ToLower(video) {
	case "h264":
		video = "avc1.640028"
	case "hevc", "h265":
		video = "hvc1.1.6.L120.90"
	}
	audio := plan.AudioCodec
	if strings.EqualFold(audio, "aac") {
		audio = "mp4a.40.2"
	}
	if audio == "" {
		return video
	}
	return video + "," + audio
}
