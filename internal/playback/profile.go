// Package playback plans and serves streaming sessions: direct play, remux,
// or transcode into DASH/HLS segments.
package playback

import (
	"strings"
	"sync"
)

// CapabilityProfile describes what a client can play. The version integer is
// incremented by the client whenever its capabilities change; a stale version
// on a play request forces a re-plan.
type CapabilityProfile struct {
	Version        int      `json:"version"`
	Containers     []string `json:"containers"`
	VideoCodecs    []string `json:"video_codecs"`
	AudioCodecs    []string `json:"audio_codecs"`
	MaxBitrateKbps int      `json:"max_bitrate_kbps"`
	SupportsHDR    bool     `json:"supports_hdr"`
}

func (p *CapabilityProfile) supportsContainer(c string) bool { return containsFold(p.Containers, c) }
func (p *CapabilityProfile) supportsVideo(c string) bool     { return containsFold(p.VideoCodecs, c) }
func (p *CapabilityProfile) supportsAudio(c string) bool     { return containsFold(p.AudioCodecs, c) }

func containsFold(xs []string, v string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// ProfileStore keeps the server-side view of each device's capability
// profile.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]CapabilityProfile // device client identifier → profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]CapabilityProfile)}
}

// Put stores the client's profile, replacing any older version.
func (s *ProfileStore) Put(clientID string, profile CapabilityProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[clientID]; ok && existing.Version > profile.Version {
		return
	}
	s.profiles[clientID] = profile
}

// Get returns the stored profile and whether the claimed version matches the
// server-side view. A mismatch tells the caller to re-plan and flag the
// client to resync.
func (s *ProfileStore) Get(clientID string, claimedVersion int) (CapabilityProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[clientID]
	if !ok {
		return CapabilityProfile{}, false
	}
	return profile, profile.Version == claimedVersion
}
