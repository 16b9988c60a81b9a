package imap

import (
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailscript/internal/model"
)

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	Mailbox    string
	UID        imap.UID
	MessageID  string // bracketed
	InReplyTo  string
	Subject    string
	From       []model.Participant
	Date       time.Time
	ReceivedAt time.Time
}

// SMTPConfig holds the SMTP server settings for one login.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// Credentials returns the login for an account. The account string is
// the sender's grant_id.
type Credentials func(account string) (username, password string, err error)
