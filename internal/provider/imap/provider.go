// Package imap implements provider.Provider on a plain mail server:
// listings and header lookups over IMAP, submission over SMTP.
//
// Provider-native message IDs differ by operation. A listed message is
// identified by its UID, qualified with its mailbox unless it lives in
// INBOX, and that is what a reply anchors on. Listings cover INBOX and the
// sent mailbox, so a sender can follow up on their own message. A sent
// message is identified by its bracketed Message-ID, which is looked up
// in the sent mailbox to read back its stored headers.
package imap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// Provider sends and lists mail for accounts on one IMAP/SMTP server pair.
type Provider struct {
	imapCfg model.IMAPConfig
	smtpCfg model.SMTPConfig
	creds   Credentials
	log     zerolog.Logger
	now     func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New creates an IMAP provider.
func New(
	imapCfg model.IMAPConfig,
	smtpCfg model.SMTPConfig,
	creds Credentials,
	log zerolog.Logger,
) *Provider {
	if imapCfg.SentMailbox == "" {
		imapCfg.SentMailbox = "Sent"
	}
	return &Provider{
		imapCfg: imapCfg,
		smtpCfg: smtpCfg,
		creds:   creds,
		log:     log.With().Str("provider", model.ProviderIMAP).Logger(),
		now:     time.Now,
	}
}

func (p *Provider) client(account string) (*IMAPClient, string, string, error) {
	username, password, err := p.creds(account)
	if err != nil {
		return nil, "", "", fmt.Errorf("credentials for %s: %w", account, err)
	}
	c := NewIMAPClient(p.imapCfg.Host, p.imapCfg.Port, username, password, p.imapCfg.TLS, p.log)
	return c, username, password, nil
}

// ListRecent implements provider.Provider.
func (p *Provider) ListRecent(
	ctx context.Context, account string, q provider.ListQuery,
) ([]provider.Message, error) {
	c, _, _, err := p.client(account)
	if err != nil {
		return nil, err
	}

	envelopes, err := c.FetchRecent(ctx, inbox, q)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	if p.imapCfg.SentMailbox != inbox {
		sent, err := c.FetchRecent(ctx, p.imapCfg.SentMailbox, q)
		if err != nil {
			p.log.Warn().Err(err).
				Str("account", account).
				Str("mailbox", p.imapCfg.SentMailbox).
				Msg("listing sent mailbox failed")
		}
		envelopes = mergeRecent(envelopes, sent, q.Limit)
	}

	p.log.Debug().Str("account", account).Int("count", len(envelopes)).Msg("listed messages")

	out := make([]provider.Message, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, envelopeToMessage(env))
	}
	return out, nil
}

// Send implements provider.Provider. ReplyToMessageID is a message
// reference as returned by ListRecent.
func (p *Provider) Send(
	ctx context.Context, account string, req provider.SendRequest,
) (*provider.SentMessage, error) {
	c, username, password, err := p.client(account)
	if err != nil {
		return nil, err
	}

	var parentID string
	if req.ReplyToMessageID != "" {
		mailbox, uid, err := parseRef(req.ReplyToMessageID)
		if err != nil {
			return nil, err
		}
		env, err := c.FetchEnvelope(ctx, mailbox, uid)
		if err != nil {
			return nil, fmt.Errorf("reading reply anchor: %w", err)
		}
		if env.MessageID == "" {
			return nil, fmt.Errorf("reply anchor UID %d in %s has no Message-ID", uid, mailbox)
		}
		parentID = env.MessageID
	}

	now := p.now()
	msg, err := compose(req, parentID, now)
	if err != nil {
		return nil, err
	}

	smtpCfg := SMTPConfig{
		Host:     p.smtpCfg.Host,
		Port:     p.smtpCfg.Port,
		Username: username,
		Password: password,
		TLS:      p.smtpCfg.TLS,
	}
	if err := submit(ctx, smtpCfg, msg.from, msg.rcpts, msg.raw); err != nil {
		return nil, fmt.Errorf("submitting message: %w", err)
	}

	if p.imapCfg.AppendSent {
		if err := c.Append(ctx, p.imapCfg.SentMailbox, msg.raw, now); err != nil {
			return nil, err
		}
	}

	p.log.Debug().
		Str("account", account).
		Str("message_id", msg.messageID).
		Int("recipients", len(msg.rcpts)).
		Msg("message submitted")

	return &provider.SentMessage{ID: msg.messageID}, nil
}

// FetchHeaders implements provider.Provider. messageID is the bracketed
// Message-ID returned by Send.
func (p *Provider) FetchHeaders(
	ctx context.Context, account, messageID string,
) (provider.Headers, error) {
	c, _, _, err := p.client(account)
	if err != nil {
		return nil, err
	}

	headers, err := c.FetchHeaderFields(ctx, p.imapCfg.SentMailbox, messageID)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return headers, nil
}

func envelopeToMessage(env Envelope) provider.Message {
	msg := provider.Message{
		ID:         messageRef(env.Mailbox, env.UID),
		From:       env.From,
		Subject:    env.Subject,
		ReceivedAt: env.ReceivedAt,
		Headers:    provider.Headers{{Name: "Subject", Value: env.Subject}},
	}
	if env.MessageID != "" {
		msg.Headers = append(msg.Headers, provider.Header{Name: provider.HeaderMessageID, Value: env.MessageID})
	}
	if env.InReplyTo != "" {
		msg.Headers = append(msg.Headers, provider.Header{Name: "In-Reply-To", Value: env.InReplyTo})
	}
	return msg
}

// mergeRecent combines two listings oldest first and keeps the newest
// limit entries.
func mergeRecent(a, b []Envelope, limit int) []Envelope {
	out := make([]Envelope, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// messageRef names a message by UID, prefixed with its mailbox when that
// is not INBOX.
func messageRef(mailbox string, uid imap.UID) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if mailbox == "" || mailbox == inbox {
		return id
	}
	return mailbox + ":" + id
}

// parseRef splits a reference from messageRef into mailbox and UID.
func parseRef(ref string) (string, imap.UID, error) {
	mailbox, id := inbox, ref
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		mailbox, id = ref[:i], ref[i+1:]
	}
	if mailbox == "" {
		return "", 0, fmt.Errorf("invalid IMAP message reference %q", ref)
	}
	uid, err := parseUID(id)
	if err != nil {
		return "", 0, err
	}
	return mailbox, uid, nil
}

// parseUID converts a provider message ID back to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid IMAP UID %q: %w", id, err)
	}
	return imap.UID(uid), nil
}
