package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/settings"
)

const reapInterval = 10 * time.Second

// Session is one active playback: a plan, a segment cache, and for
// remux/transcode modes a running producer subprocess.
type Session struct {
	ID         string
	UserID     uint
	ItemID     uint
	PartID     uint
	PartPath   string
	DurationMs int64
	Plan       Plan

	cache      *segmentCache
	transcoder *transcoder
	release    func()

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Manager owns playback sessions: it enforces the transcode concurrency
// semaphore, reaps idle sessions, and routes segment requests.
type Manager struct {
	cfg         config.TranscodeConfig
	settings    *settings.Store
	sem         chan struct{}
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(cfg config.TranscodeConfig, store *settings.Store) *Manager {
	opts, err := store.Transcode()
	if err != nil {
		opts = settings.DefaultTranscode()
	}
	maxConcurrent := opts.MaxConcurrentTranscodes
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	idle := time.Duration(opts.IdleTimeoutSeconds) * time.Second
	if idle <= 0 {
		idle = 60 * time.Second
	}
	m := &Manager{
		cfg:         cfg,
		settings:    store,
		sem:         make(chan struct{}, maxConcurrent),
		idleTimeout: idle,
		sessions:    make(map[string]*Session),
		stop:        make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Start opens a session for the planned delivery of a part. Transcode and
// remux sessions take a semaphore slot; when all slots are busy the call
// queues until one frees or the context ends.
func (m *Manager) Start(ctx context.Context, userID uint, item *database.MetadataItem,
	part *database.MediaPart, plan Plan) (*Session, error) {

	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		ItemID:     item.ID,
		PartID:     part.ID,
		PartPath:   part.Path,
		DurationMs: part.DurationMs,
		Plan:       plan,
		cache:      newSegmentCache(),
		lastAccess: time.Now(),
	}

	if plan.Mode != DirectPlay {
		select {
		case m.sem <- struct{}{}:
			session.release = func() { <-m.sem }
		case <-ctx.Done():
			return nil, errs.E(errs.ResourceExhausted, "waiting for a transcode slot", ctx.Err())
		}

		workDir := filepath.Join(m.cfg.WorkDir, session.ID)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			session.release()
			return nil, errs.E(errs.Internal, "create transcode workspace", err)
		}
		tc, err := startTranscoder(m.cfg.FFmpegPath, part.Path, workDir, plan)
		if err != nil {
			session.release()
			os.RemoveAll(workDir)
			return nil, err
		}
		session.transcoder = tc
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	logger.Info("playback session started", "session", session.ID, "mode", plan.Mode, "part", part.UUID)
	return session, nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.Ef(errs.NotFound, "playback session %q", sessionID)
	}
	return session, nil
}

// Segment returns the bytes for one segment index, producing it on demand.
// Indices the client already fetched come from the cache.
func (m *Manager) Segment(ctx context.Context, sessionID string, index int) ([]byte, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	session.touch()

	if data, ok := session.cache.Get(index); ok {
		return data, nil
	}
	if session.transcoder == nil {
		return nil, errs.E(errs.FailedPrecondition, "direct play sessions have no segments")
	}
	data, err := session.transcoder.waitForSegment(ctx, index)
	if err != nil {
		return nil, err
	}
	return session.cache.Put(index, data), nil
}

// Stop tears the session down, killing its producer and freeing its slot.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.teardown(session)
}

// Close stops the reaper and every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		m.teardown(s)
	}
}

func (m *Manager) teardown(session *Session) {
	if session.transcoder != nil {
		session.transcoder.stop()
		os.RemoveAll(session.transcoder.workDir)
	}
	if session.release != nil {
		session.release()
	}
	logger.Info("playback session closed", "session", session.ID)
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)
	m.mu.Lock()
	var idle []*Session
	for id, session := range m.sessions {
		if session.idleSince().Before(cutoff) {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, session := range idle {
		logger.Info("reaping idle playback session", "session", session.ID)
		m.teardown(session)
	}
}

// SegmentName formats the segment file name for an index.
func SegmentName(index int) string {
	return fmt.Sprintf("seg-%d.m4s", index)
}
