package model

// Sender is a locally defined mailbox identity. Senders are also the
// address book: recipient keys in an EmailRecord resolve against the
// same set.
type Sender struct {
	// Key is the local identifier referenced by EmailRecord fields.
	Key string `json:"key" yaml:"-"`

	// Email is the mailbox address.
	Email string `json:"email" yaml:"email"`

	// Name is the display name used in From/To headers.
	Name string `json:"name" yaml:"name"`

	// GrantID scopes provider operations to this sender's mailbox
	// (a Nylas grant, or the IMAP/SMTP login for the imap provider).
	GrantID string `json:"grant_id" yaml:"grant_id"`
}

// Participant returns the sender as a name/address pair.
func (s Sender) Participant() Participant {
	return Participant{Name: s.Name, Email: s.Email}
}

// Participant is a resolved name/address pair as sent to the provider.
type Participant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}
