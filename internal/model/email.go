package model

import "time"

// EmailRecord is one scripted message from a conversation file.
type EmailRecord struct {
	// ID is the local identifier, unique within a batch.
	ID string `json:"id"`

	// From is the sender key of the authoring identity.
	From string `json:"from"`

	// To, Cc and Bcc hold sender keys, not addresses.
	To  []string `json:"to"`
	Cc  []string `json:"cc"`
	Bcc []string `json:"bcc"`

	Subject string `json:"subject"`
	Content string `json:"content"`

	// Timestamp orders the record within its batch. Nil sorts first.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// RawTimestamp is the timestamp exactly as written in the file.
	RawTimestamp string `json:"-"`

	// InReplyTo is the local ID of the parent record, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// IsReply reports whether the record names a parent record.
func (e EmailRecord) IsReply() bool {
	return e.InReplyTo != ""
}
