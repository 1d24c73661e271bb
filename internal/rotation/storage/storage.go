package storage

import (
	"time"
)

// Storage persists one record per rotation run
type Storage interface {
	// SaveRun stores a finished run
	SaveRun(run *RunRecord) error

	// ListRuns returns runs newest first; limit <= 0 means all
	ListRuns(limit int) ([]RunRecord, error)

	// CleanupOldEntries removes runs older than the specified duration
	CleanupOldEntries(olderThan time.Duration) error
}

// RunRecord is the journal entry of one run. It never carries a password.
type RunRecord struct {
	ID          string         `json:"id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Mode        string         `json:"mode"` // live, dry-run
	Host        string         `json:"host,omitempty"`
	Database    string         `json:"database,omitempty"`
	SecretStore string         `json:"secret_store,omitempty"`
	User        string         `json:"user,omitempty"`
	Targets     []TargetRecord `json:"targets"`
}

// TargetRecord is the final state of one target within a run
type TargetRecord struct {
	Username string        `json:"username"`
	SecretID string        `json:"secret_id"`
	State    string        `json:"state"`
	Created  bool          `json:"created,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Failed counts targets that did not reach the final success state
func (r *RunRecord) Failed(success string) int {
	n := 0
	for _, t := range r.Targets {
		if t.State != success {
			n++
		}
	}
	return n
}
