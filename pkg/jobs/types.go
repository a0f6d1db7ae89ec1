package jobs

import (
	"sort"
	"time"
)

// Status is the outcome of a job.
//
// NOTE: These values are persisted by every repository backend and are part
// of the stable storage contract.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusDead  Status = "DEAD"
)

// State is derived from the presence of the stopped timestamp.
type State string

const (
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
)

// Level is the severity of a job message.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Message is one log line emitted by a running job.
type Message struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Level     Level     `json:"level" bson:"level"`
	Text      string    `json:"text" bson:"text"`
}

// Record is the persistent record of one job execution.
//
// Messages are append-only and kept in emission order. Stopped is nil while
// the job is running; once set, only cleanup strategies correct the record.
type Record struct {
	ID          string     `json:"id"`
	URI         string     `json:"uri"`
	JobType     string     `json:"job_type"`
	Started     time.Time  `json:"started"`
	Stopped     *time.Time `json:"stopped,omitempty"`
	Status      Status     `json:"status"`
	Messages    []Message  `json:"messages"`
	LastUpdated time.Time  `json:"last_updated"`
	Hostname    string     `json:"hostname,omitempty"`
}

// NewRecord returns a RUNNING record with status OK.
func NewRecord(id, uri, jobType, hostname string, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		ID:          id,
		URI:         uri,
		JobType:     jobType,
		Started:     now,
		Status:      StatusOK,
		Messages:    []Message{},
		LastUpdated: now,
		Hostname:    hostname,
	}
}

// State reports RUNNING until a stopped timestamp is set.
func (r *Record) State() State {
	if r.Stopped == nil {
		return StateRunning
	}
	return StateStopped
}

// IsStopped reports whether the job has reached a terminal state.
func (r *Record) IsStopped() bool {
	return r.Stopped != nil
}

// Clone returns a deep copy so callers never share message slices or
// timestamps with stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Stopped != nil {
		t := *r.Stopped
		c.Stopped = &t
	}
	c.Messages = make([]Message, len(r.Messages))
	copy(c.Messages, r.Messages)
	return &c
}

// AppendMessage adds a message and bumps LastUpdated.
func (r *Record) AppendMessage(level Level, text string, now time.Time) {
	now = now.UTC()
	r.Messages = append(r.Messages, Message{Timestamp: now, Level: level, Text: text})
	r.LastUpdated = now
}

// Stop finalizes the record with the given status.
func (r *Record) Stop(status Status, now time.Time) {
	now = now.UTC()
	r.Status = status
	r.Stopped = &now
	r.LastUpdated = now
}

// SortNewestFirst orders records by start time descending. Ties are broken by
// ID so listings are deterministic.
func SortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Started.Equal(b.Started) {
			return a.Started.After(b.Started)
		}
		return a.ID > b.ID
	})
}

// Limit truncates records to at most n entries. n <= 0 means no limit.
func Limit(records []*Record, n int) []*Record {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}
