package dispatch

import (
	"errors"
	"time"
)

var (
	// ErrInvalidParams marks caller input that fails validation. It is the
	// only error the publish caller ever sees besides queue pressure.
	ErrInvalidParams = errors.New("invalid params")

	ErrQueueFull = errors.New("dispatch: queue full")
	ErrStopped   = errors.New("dispatch: stopped")
)

// Event types published on the bus. Delivery outcomes are observable here
// and in the log only; the original publish caller never sees them.
const (
	EventSent    = "delivery.sent"
	EventFailed  = "delivery.failed"
	EventDryRun  = "delivery.dryrun"
	EventDropped = "publish.dropped"
)

// DeliveryEvent is the bus payload for the event types above.
type DeliveryEvent struct {
	Session    string
	MessageID  string
	SequenceID string
	Status     int
	Error      string
	At         time.Time
}

// Request is a validated, normalized publish request.
type Request struct {
	Session string
	Status  string
	Stage   *int
	Total   *int
	Result  string
	Next    string
	Details string
	Area    string
	Repo    string
	Branch  string

	Title   string
	Message string

	// Tags are the caller's own tags; defaults and derived tags are added
	// when the outbound message is built.
	Tags []string

	// Priority is the effective ntfy priority value (named or numeric).
	Priority string

	Update     bool
	SequenceID string
	Topic      string

	Markdown bool
	Click    string
	Actions  string
	Icon     string
	Attach   string
	Filename string
	Email    string
	Delay    string
}

// Ack is the caller-visible result of a publish. It is produced before the
// background send runs.
type Ack struct {
	Session    string `json:"session,omitempty"`
	Enqueued   bool   `json:"enqueued"`
	Suppressed bool   `json:"suppressed,omitempty"`
	Reason     string `json:"reason,omitempty"`
	SequenceID string `json:"sequenceId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	QueueSize  int    `json:"queueSize,omitempty"`
}

// Stats are best-effort delivery counters for the status surface.
type Stats struct {
	QueueSize     int       `json:"queueSize"`
	SentOK        uint64    `json:"sentOk"`
	SentErr       uint64    `json:"sentErr"`
	DryRun        uint64    `json:"dryRun"`
	Dropped       uint64    `json:"dropped"`
	LastSuccessAt time.Time `json:"lastSuccessAt,omitzero"`
	LastErrorAt   time.Time `json:"lastErrorAt,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}
