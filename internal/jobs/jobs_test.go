package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/events"
)

func testStore(t *testing.T) *NotificationStore {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return NewNotificationStore(db)
}

func TestAtMostOneActiveEntryPerScope(t *testing.T) {
	store := testStore(t)
	section := uint(1)

	first, existed, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.UUID, second.UUID)

	// A different scope gets its own entry.
	other := uint(2)
	third, existed, err := store.CreateOrGetActive(database.JobLibraryScan, &other, nil)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEqual(t, first.UUID, third.UUID)

	// A different job type in the same scope gets its own entry too.
	fourth, existed, err := store.CreateOrGetActive(database.JobMetadataRefresh, &section, nil)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEqual(t, first.UUID, fourth.UUID)
}

func TestTerminalEntryAllowsResubmit(t *testing.T) {
	store := testStore(t)
	section := uint(1)

	first, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)

	_, err = store.Apply(first.UUID, Terminal(database.StatusSucceeded, "done"))
	require.NoError(t, err)

	second, existed, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEqual(t, first.UUID, second.UUID)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	store := testStore(t)
	section := uint(1)
	entry, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)

	_, err = store.Apply(entry.UUID, Update{Status: database.StatusRunning})
	require.NoError(t, err)
	_, err = store.Apply(entry.UUID, Terminal(database.StatusFailed, "disk on fire"))
	require.NoError(t, err)

	// A straggler progress report after the terminal write changes nothing.
	after, err := store.Apply(entry.UUID, Progress(0.5, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, after.Status)
	assert.Equal(t, "disk on fire", after.Message)
}

func TestActiveListsOldestFirst(t *testing.T) {
	store := testStore(t)
	a, b := uint(1), uint(2)
	first, _, err := store.CreateOrGetActive(database.JobLibraryScan, &a, nil)
	require.NoError(t, err)
	second, _, err := store.CreateOrGetActive(database.JobLibraryScan, &b, nil)
	require.NoError(t, err)

	_, err = store.Apply(first.UUID, Update{Status: database.StatusRunning})
	require.NoError(t, err)

	active, err := store.Active()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.UUID, active[0].UUID)
	assert.Equal(t, second.UUID, active[1].UUID)

	_, err = store.Apply(second.UUID, Terminal(database.StatusCancelled, ""))
	require.NoError(t, err)
	active, err = store.Active()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.UUID, active[0].UUID)
}

func TestPurgeRemovesOnlyOldTerminalEntries(t *testing.T) {
	store := testStore(t)
	section := uint(1)
	entry, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)
	_, err = store.Apply(entry.UUID, Terminal(database.StatusSucceeded, ""))
	require.NoError(t, err)

	// Cutoff in the past keeps the fresh entry.
	removed, err := store.PurgeTerminalBefore(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	// Cutoff in the future removes it.
	removed, err = store.PurgeTerminalBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Active entries are never purged.
	active, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)
	removed, err = store.PurgeTerminalBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	_, err = store.GetByUUID(active.UUID)
	assert.NoError(t, err)
}

func TestReporterCoalescesUntilFlush(t *testing.T) {
	store := testStore(t)
	bus := events.NewBus()
	defer bus.Close()
	sub, cancel := bus.Subscribe(0, events.EventJobNotification)
	defer cancel()

	section := uint(1)
	entry, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)

	reporter := NewReporter(store, bus, time.Hour) // interval long enough to never fire

	reporter.Report(entry.UUID, Progress(0.1, 1, 10))
	reporter.Report(entry.UUID, Progress(0.4, 4, 10))

	// Nothing hits the store until a flush.
	current, err := store.GetByUUID(entry.UUID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, current.Progress)

	reporter.flushAll()
	current, err = store.GetByUUID(entry.UUID)
	require.NoError(t, err)
	assert.Equal(t, 0.4, current.Progress)
	assert.Equal(t, int64(4), current.CompletedItems)

	evt := <-sub
	assert.Equal(t, events.EventJobNotification, evt.Type)
}

func TestReporterFlushesTerminalImmediately(t *testing.T) {
	store := testStore(t)
	section := uint(1)
	entry, _, err := store.CreateOrGetActive(database.JobLibraryScan, &section, nil)
	require.NoError(t, err)

	reporter := NewReporter(store, nil, time.Hour)
	reporter.Report(entry.UUID, Progress(0.9, 9, 10))
	reporter.Report(entry.UUID, Terminal(database.StatusSucceeded, "done"))

	current, err := store.GetByUUID(entry.UUID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSucceeded, current.Status)
	assert.Equal(t, 1.0, current.Progress)
	// The buffered progress rode along with the terminal flush.
	assert.Equal(t, int64(9), current.CompletedItems)

	// Nothing pending remains.
	reporter.mu.Lock()
	assert.Empty(t, reporter.pending)
	reporter.mu.Unlock()
}
