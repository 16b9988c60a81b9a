// Package logprovider is a dry-run provider.Provider. Sends are logged and
// delivered to an in-memory mailbox set instead of a real server, so a
// conversation script can be rehearsed end to end without credentials.
package logprovider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// Domain is used for generated Message-IDs.
const Domain = "mailscript.invalid"

type stored struct {
	owner   string
	thread  string
	headers provider.Headers
}

// Provider keeps every message in memory. Delivery is immediate: a sent
// message shows up at once in the inbox of every account whose address
// appears among its recipients, and in the sender's own sent list.
type Provider struct {
	mu sync.Mutex

	// accounts maps an email address to its account (grant ID).
	accounts map[string]string
	sent     map[string]stored
	inboxes  map[string][]provider.Message
	outboxes map[string][]provider.Message

	log zerolog.Logger
	now func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New creates a log provider that delivers to the mailboxes of senders.
func New(senders map[string]model.Sender, log zerolog.Logger) *Provider {
	accounts := make(map[string]string, len(senders))
	for _, s := range senders {
		accounts[s.Email] = s.GrantID
	}
	return &Provider{
		accounts: accounts,
		sent:     make(map[string]stored),
		inboxes:  make(map[string][]provider.Message),
		outboxes: make(map[string][]provider.Message),
		log:      log.With().Str("provider", model.ProviderLog).Logger(),
		now:      time.Now,
	}
}

// ListRecent implements provider.Provider. The listing covers the
// account's received and sent messages.
func (p *Provider) ListRecent(
	_ context.Context, account string, q provider.ListQuery,
) ([]provider.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]provider.Message, 0, len(p.inboxes[account])+len(p.outboxes[account]))
	all = append(all, p.inboxes[account]...)
	all = append(all, p.outboxes[account]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ReceivedAt.Before(all[j].ReceivedAt)
	})

	var out []provider.Message
	for _, msg := range all {
		if q.From != "" && (len(msg.From) == 0 || msg.From[0].Email != q.From) {
			continue
		}
		if !q.ReceivedAfter.IsZero() && !msg.ReceivedAt.After(q.ReceivedAfter) {
			continue
		}
		if !q.IncludeHeaders {
			msg.Headers = nil
		}
		out = append(out, msg)
	}

	// Keep the newest.
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// Send implements provider.Provider.
func (p *Provider) Send(
	_ context.Context, account string, req provider.SendRequest,
) (*provider.SentMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	threadID := id
	if req.ReplyToMessageID != "" {
		parent, ok := p.sent[req.ReplyToMessageID]
		if !ok || parent.owner != account {
			return nil, fmt.Errorf("reply anchor %s: %w", req.ReplyToMessageID, provider.ErrNotFound)
		}
		threadID = parent.thread
	}

	rfc := fmt.Sprintf("<%s@%s>", uuid.NewString(), Domain)
	now := p.now()

	headers := provider.Headers{
		{Name: provider.HeaderMessageID, Value: rfc},
		{Name: "Subject", Value: req.Subject},
	}
	headers = append(headers, req.Headers...)

	msg := provider.Message{
		ID:         id,
		From:       append([]model.Participant(nil), req.From...),
		Subject:    req.Subject,
		ReceivedAt: now,
		Headers:    headers,
	}
	p.sent[id] = stored{owner: account, thread: threadID, headers: headers}
	p.outboxes[account] = append(p.outboxes[account], msg)

	delivered := 0
	for _, list := range [][]model.Participant{req.To, req.Cc, req.Bcc} {
		for _, rcpt := range list {
			rcptAccount, ok := p.accounts[rcpt.Email]
			if !ok {
				continue
			}
			copyMsg := msg
			copyMsg.ID = uuid.NewString()
			p.inboxes[rcptAccount] = append(p.inboxes[rcptAccount], copyMsg)
			p.sent[copyMsg.ID] = stored{owner: rcptAccount, thread: threadID, headers: headers}
			delivered++
		}
	}

	p.log.Info().
		Str("account", account).
		Str("message_id", rfc).
		Str("subject", req.Subject).
		Str("reply_to", req.ReplyToMessageID).
		Int("to", len(req.To)).
		Int("cc", len(req.Cc)).
		Int("bcc", len(req.Bcc)).
		Int("delivered", delivered).
		Msg("dry-run send")

	return &provider.SentMessage{ID: id, ThreadID: threadID}, nil
}

// FetchHeaders implements provider.Provider.
func (p *Provider) FetchHeaders(
	_ context.Context, account, messageID string,
) (provider.Headers, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sent[messageID]
	if !ok || s.owner != account {
		return nil, fmt.Errorf("message %s: %w", messageID, provider.ErrNotFound)
	}
	return append(provider.Headers(nil), s.headers...), nil
}
