package ipc

import (
	"time"

	"rmqmeta/internal/ledger"
)

// StartRequest triggers consumer startup.
type StartRequest struct{}

// StartResponse indicates whether the consumer was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the consumer.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// StatusResponse represents combined daemon and consumer status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	Connected    bool               `json:"connected"`
	Exchange     string             `json:"exchange"`
	Queues       []string           `json:"queues"`
	Processed    int64              `json:"processed"`
	StateCounts  map[string]int     `json:"state_counts"`
	LastError    string             `json:"last_error"`
	LockPath     string             `json:"lock_path"`
	LedgerPath   string             `json:"ledger_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// Delivery is the wire form of one ledger entry.
type Delivery struct {
	ID             int64     `json:"id"`
	MessageID      string    `json:"message_id"`
	RoutingKey     string    `json:"routing_key"`
	Queue          string    `json:"queue"`
	State          string    `json:"state"`
	Redelivered    bool      `json:"redelivered"`
	RecordID       string    `json:"record_id,omitempty"`
	DocumentPath   string    `json:"document_path,omitempty"`
	QuarantinePath string    `json:"quarantine_path,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	BackendsOK     int       `json:"backends_ok"`
	DurationMillis int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromEntry converts a ledger entry to its wire form.
func FromEntry(e ledger.Entry) Delivery {
	return Delivery{
		ID:             e.ID,
		MessageID:      e.MessageID,
		RoutingKey:     e.RoutingKey,
		Queue:          e.Queue,
		State:          e.State,
		Redelivered:    e.Redelivered,
		RecordID:       e.RecordID,
		DocumentPath:   e.DocumentPath,
		QuarantinePath: e.QuarantinePath,
		Reason:         e.Reason,
		Error:          e.Error,
		BackendsOK:     e.BackendsOK,
		DurationMillis: e.Duration.Milliseconds(),
		CreatedAt:      e.CreatedAt,
	}
}

// RecentRequest lists the latest deliveries.
type RecentRequest struct {
	Limit int `json:"limit"`
}

// LookupRequest fetches every delivery of one message id.
type LookupRequest struct {
	MessageID string `json:"message_id"`
}

// DeliveriesResponse contains ledger entries, newest first.
type DeliveriesResponse struct {
	Deliveries []Delivery `json:"deliveries"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
