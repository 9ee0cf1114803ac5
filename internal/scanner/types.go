// Package scanner turns filesystem trees into persisted catalog items
// through a stage-composed pipeline: discover → filter → classify → match →
// extract → normalize → persist.
package scanner

import (
	"time"

	"github.com/nexalabs/nexa/internal/database"
)

// Stage names used in progress reporting.
const (
	StageDiscover  = "discover"
	StageFilter    = "filter"
	StageClassify  = "classify"
	StageMatch     = "match"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StagePersist   = "persist"
)

// Candidate is one file descriptor emitted by discovery.
type Candidate struct {
	Path  string
	Size  int64
	MTime time.Time
	Ext   string
}

// classified is a candidate with an intended metadata type and its
// layout-derived grouping context.
type classified struct {
	Candidate
	intendedType database.MetadataType

	showTitle    string
	seasonNumber int
	artistName   string
	albumTitle   string
	discNumber   int
	groupKey     string
}

// ProgressSink receives per-stage progress from a running scan. A total of -1
// means unknown.
type ProgressSink interface {
	Report(stage string, processed, total int64)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(stage string, processed, total int64)

func (f ProgressFunc) Report(stage string, processed, total int64) { f(stage, processed, total) }

// NopProgress discards progress reports.
var NopProgress ProgressSink = ProgressFunc(func(string, int64, int64) {})

// Enqueuer schedules downstream jobs for items affected by a scan.
type Enqueuer interface {
	Enqueue(jobType database.JobType, sectionID, itemID *uint) (string, error)
}

// Stats summarizes one completed scan.
type Stats struct {
	Discovered int64
	Skipped    int64 // unchanged files dropped by the filter stage
	Units      int64
	Inserted   int64
	Updated    int64
	Failed     int64
	Removed    int64 // items soft-deleted because their last part vanished
	StartedAt  time.Time
	FinishedAt time.Time
}
