package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

var allStatuses = []Status{StatusQueued, StatusRunning, StatusDone, StatusError}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Kind distinguishes single-file jobs from whole-directory album jobs.
type Kind string

const (
	KindSingle Kind = "single"
	KindAlbum  Kind = "album"
)

// Job represents one unit of work persisted in SQLite.
type Job struct {
	ID           int64
	InputPath    string
	InputSHA256  string
	Model        string
	StemSet      string
	SampleRate   int
	BitDepth     int
	Codec        string
	Status       Status
	Kind         Kind
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	OutputPath   string
	ManifestPath string
	NotesJSON    string
	ErrorMessage string
}

// IsActive reports whether the job is queued or currently running.
func (j Job) IsActive() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}

// Spec carries the attributes needed to enqueue a job. The tuple
// (Fingerprint, Model, StemSet, SampleRate, BitDepth, Codec) is the dedup key.
type Spec struct {
	InputPath   string
	Fingerprint string
	Model       string
	StemSet     string
	SampleRate  int
	BitDepth    int
	Codec       string
	Kind        Kind
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total   int
	Queued  int
	Running int
	Done    int
	Errored int
}
