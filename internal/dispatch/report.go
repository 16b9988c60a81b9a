package dispatch

import (
	"fmt"
)

// Status is a record's position in the send pipeline.
type Status string

const (
	StatusPending             Status = "pending"
	StatusResolvingRecipients Status = "resolving_recipients"
	StatusResolvingAnchor     Status = "resolving_anchor"
	StatusSending             Status = "sending"
	StatusSent                Status = "sent"
	StatusFailed              Status = "failed"
)

// Terminal reports whether no further transition can follow.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Outcome is what happened to one record.
type Outcome struct {
	ID     string
	Status Status

	// Threaded is set when the message was sent with a reply anchor.
	Threaded bool
	Anchor   string

	// Fallback explains why a reply was sent unthreaded.
	Fallback string

	// Dropped lists recipient keys that did not resolve to a sender.
	Dropped []string

	ProviderID   string
	RFCMessageID string

	// Err is the failure for StatusFailed outcomes.
	Err error
}

// Report summarises one batch run.
type Report struct {
	BatchID  string
	Outcomes []Outcome

	// Index is the batch's final thread index.
	Index *ThreadIndex
}

// Outcome returns the outcome for localID.
func (r *Report) Outcome(localID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == localID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Counts returns the number of sent and failed records.
func (r *Report) Counts() (sent, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSent:
			sent++
		case StatusFailed:
			failed++
		}
	}
	return sent, failed
}

// Summary is a one-line human summary.
func (r *Report) Summary() string {
	sent, failed := r.Counts()
	return fmt.Sprintf("batch %s: %d sent, %d failed, %d total", r.BatchID, sent, failed, len(r.Outcomes))
}

// UnknownSenderError reports an email whose from key names no sender.
// It aborts the whole batch before anything is sent.
type UnknownSenderError struct {
	EmailID   string
	SenderKey string
}

func (e *UnknownSenderError) Error() string {
	return fmt.Sprintf("email %s: from sender key %q not found in senders", e.EmailID, e.SenderKey)
}
