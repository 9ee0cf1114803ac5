package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/logger"
)

// Task type names on the queue, one per job family.
const (
	TaskLibraryScan         = "nexa:library_scan"
	TaskMetadataRefresh     = "nexa:metadata_refresh"
	TaskFileAnalysis        = "nexa:file_analysis"
	TaskImageGeneration     = "nexa:image_generation"
	TaskTrickplayGeneration = "nexa:trickplay_generation"
)

var taskTypes = map[database.JobType]string{
	database.JobLibraryScan:         TaskLibraryScan,
	database.JobMetadataRefresh:     TaskMetadataRefresh,
	database.JobFileAnalysis:        TaskFileAnalysis,
	database.JobImageGeneration:     TaskImageGeneration,
	database.JobTrickplayGeneration: TaskTrickplayGeneration,
}

// Payload is the queued task body. The entry UUID ties the task back to its
// notification entry across restarts.
type Payload struct {
	EntryUUID        string           `json:"entry_uuid"`
	JobType          database.JobType `json:"job_type"`
	LibrarySectionID *uint            `json:"library_section_id,omitempty"`
	MetadataItemID   *uint            `json:"metadata_item_id,omitempty"`
	Force            bool             `json:"force,omitempty"`
	IncludeChildren  bool             `json:"include_children,omitempty"`
}

// Scheduler submits jobs to the persistent queue. Submitting a job whose
// scope already has an active entry returns that entry's UUID instead of
// queueing a second run.
type Scheduler struct {
	client *asynq.Client
	store  *NotificationStore
}

func NewScheduler(redisAddr string, store *NotificationStore) *Scheduler {
	return &Scheduler{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		store:  store,
	}
}

// Enqueue schedules a job and returns its notification entry UUID.
func (s *Scheduler) Enqueue(jobType database.JobType, sectionID, itemID *uint) (string, error) {
	return s.EnqueueWith(Payload{JobType: jobType, LibrarySectionID: sectionID, MetadataItemID: itemID})
}

// EnqueueWith schedules a job with full payload control.
func (s *Scheduler) EnqueueWith(p Payload) (string, error) {
	taskType, ok := taskTypes[p.JobType]
	if !ok {
		return "", fmt.Errorf("unknown job type %q", p.JobType)
	}

	entry, existed, err := s.store.CreateOrGetActive(p.JobType, p.LibrarySectionID, p.MetadataItemID)
	if err != nil {
		return "", err
	}
	if existed {
		logger.Debug("job already active for scope", "type", p.JobType, "entry", entry.UUID)
		return entry.UUID, nil
	}

	p.EntryUUID = entry.UUID
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}
	task := asynq.NewTask(taskType, data, asynq.TaskID(entry.UUID), asynq.MaxRetry(2))
	if _, err := s.client.Enqueue(task); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return entry.UUID, nil
}

// Close releases the queue client.
func (s *Scheduler) Close() error {
	return s.client.Close()
}
