// Package provider defines the contract between the send pipeline and an
// email backend. Backends live in subpackages.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/mailscript/internal/model"
)

// HeaderMessageID is the RFC 5322 header carrying a message's identity.
const HeaderMessageID = "Message-ID"

// Header is a single name/value header pair.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list as returned by a backend.
type Headers []Header

// Get returns the value of the first header whose name matches name
// case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			return header.Value, true
		}
	}
	return "", false
}

// MessageID returns the first Message-ID header value.
func (h Headers) MessageID() (string, bool) {
	return h.Get(HeaderMessageID)
}

// Message is a received message as listed by a backend.
type Message struct {
	// ID is the backend-native identifier, usable as a reply anchor.
	ID string

	From       []model.Participant
	Subject    string
	ReceivedAt time.Time
	Headers    Headers
}

// ListQuery filters a listing of recently received messages.
type ListQuery struct {
	// From restricts results to messages sent by this address.
	From string

	// ReceivedAfter restricts results to messages received after this instant.
	ReceivedAfter time.Time

	// Limit caps the number of messages returned.
	Limit int

	// IncludeHeaders asks the backend to populate Message.Headers.
	IncludeHeaders bool
}

// SendRequest is a fully resolved outgoing message.
type SendRequest struct {
	From    []model.Participant
	To      []model.Participant
	Cc      []model.Participant
	Bcc     []model.Participant
	Subject string
	Body    string

	// ReplyToMessageID is the backend-native anchor of the parent
	// message. Empty sends an unthreaded message.
	ReplyToMessageID string

	// Headers are custom headers added to the outgoing message.
	Headers Headers
}

// SentMessage is a backend's acknowledgement of an accepted send.
type SentMessage struct {
	// ID is the backend-native identifier of the sent message.
	ID string

	// ThreadID is the backend's conversation identifier, when it has one.
	ThreadID string
}

// Provider is the email backend used by the resolver and orchestrator.
// account scopes every call to one mailbox (a sender's GrantID).
type Provider interface {
	// ListRecent lists recently received messages in account's mailbox.
	ListRecent(ctx context.Context, account string, q ListQuery) ([]Message, error)

	// Send submits msg from account's mailbox.
	Send(ctx context.Context, account string, msg SendRequest) (*SentMessage, error)

	// FetchHeaders returns the stored headers of a message in account's
	// mailbox, as the backend recorded them after accepting it.
	FetchHeaders(ctx context.Context, account, messageID string) (Headers, error)
}

// AuthError indicates that a backend rejected the configured credentials.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrNotFound is returned when a message lookup matches nothing.
var ErrNotFound = errors.New("message not found")
