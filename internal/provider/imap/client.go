package imap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/textproto"
	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// inbox is where received mail is delivered.
const inbox = "INBOX"

// IMAPClient wraps go-imap v2 for one mailbox login.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	log      zerolog.Logger
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool, log zerolog.Logger,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		log:      log,
	}
}

// Connect establishes a connection to the IMAP server and authenticates.
// The caller is responsible for calling Logout on the returned client.
func (c *IMAPClient) Connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.AuthError{
			Provider: model.ProviderIMAP,
			Message:  fmt.Sprintf("authentication failed for %s: %v", c.username, err),
		}
	}

	return client, nil
}

// session connects, selects mailbox and hands the client to fn.
func (c *IMAPClient) session(
	ctx context.Context, mailbox string, fn func(*imapclient.Client) error,
) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	return fn(client)
}

// FetchRecent lists messages in mailbox from the given address received
// after the given instant, newest last, capped at limit.
func (c *IMAPClient) FetchRecent(
	ctx context.Context, mailbox string, q provider.ListQuery,
) ([]Envelope, error) {
	var envelopes []Envelope

	err := c.session(ctx, mailbox, func(client *imapclient.Client) error {
		searchData, err := client.UIDSearch(searchCriteria(q), nil).Wait()
		if err != nil {
			return fmt.Errorf("searching messages: %w", err)
		}

		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			return nil
		}

		// Take the most recent.
		if q.Limit > 0 && len(uids) > q.Limit {
			uids = uids[len(uids)-q.Limit:]
		}

		fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
			Envelope:     true,
			UID:          true,
			InternalDate: true,
		})
		defer fetchCmd.Close()

		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}

			buf, err := msg.Collect()
			if env, ok := c.listedEnvelope(mailbox, msg.SeqNum, buf, err, q.ReceivedAfter); ok {
				envelopes = append(envelopes, env)
			}
		}

		if err := fetchCmd.Close(); err != nil {
			return fmt.Errorf("fetching envelopes: %w", err)
		}
		return nil
	})

	return envelopes, err
}

// listedEnvelope turns one fetched listing entry into an envelope. It
// reports false for messages that could not be read, which are logged,
// and for messages received before after.
func (c *IMAPClient) listedEnvelope(
	mailbox string, seq uint32, buf *imapclient.FetchMessageBuffer, err error, after time.Time,
) (Envelope, bool) {
	if err != nil {
		c.log.Debug().Err(err).
			Str("mailbox", mailbox).
			Uint32("seq", seq).
			Msg("skipping unreadable message")
		return Envelope{}, false
	}

	env := envelopeFromBuffer(buf)
	env.Mailbox = mailbox
	// SINCE has day granularity; narrow it to the instant.
	if !after.IsZero() && env.ReceivedAt.Before(after) {
		return Envelope{}, false
	}
	return env, true
}

// FetchEnvelope returns the envelope of the message with uid in mailbox.
func (c *IMAPClient) FetchEnvelope(
	ctx context.Context, mailbox string, uid imap.UID,
) (*Envelope, error) {
	var env *Envelope

	err := c.session(ctx, mailbox, func(client *imapclient.Client) error {
		fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			Envelope: true,
			UID:      true,
		})
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return fmt.Errorf("message UID %d in %s: %w", uid, mailbox, provider.ErrNotFound)
		}

		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}

		e := envelopeFromBuffer(buf)
		e.Mailbox = mailbox
		env = &e
		return fetchCmd.Close()
	})

	return env, err
}

// FetchHeaderFields finds the message in mailbox whose Message-ID is
// messageID and returns its header fields.
func (c *IMAPClient) FetchHeaderFields(
	ctx context.Context, mailbox, messageID string,
) (provider.Headers, error) {
	var headers provider.Headers

	err := c.session(ctx, mailbox, func(client *imapclient.Client) error {
		criteria := &imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{
				{Key: provider.HeaderMessageID, Value: strings.Trim(messageID, "<>")},
			},
		}
		searchData, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching %s: %w", mailbox, err)
		}

		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			return fmt.Errorf("message %s in %s: %w", messageID, mailbox, provider.ErrNotFound)
		}

		section := &imap.FetchItemBodySection{
			Specifier: imap.PartSpecifierHeader,
			Peek:      true,
		}
		fetchCmd := client.Fetch(imap.UIDSetNum(uids[len(uids)-1]), &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return fmt.Errorf("message %s in %s: %w", messageID, mailbox, provider.ErrNotFound)
		}

		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}

		headers, err = parseHeaderBlock(buf.FindBodySection(section))
		if err != nil {
			return err
		}
		return fetchCmd.Close()
	})

	return headers, err
}

// Append stores raw in mailbox with the \Seen flag.
func (c *IMAPClient) Append(ctx context.Context, mailbox string, raw []byte, at time.Time) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  at,
	})
	if _, err := cmd.Write(raw); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	return nil
}

// searchCriteria builds the UID SEARCH for a recent-messages listing.
func searchCriteria(q provider.ListQuery) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if !q.ReceivedAfter.IsZero() {
		// SINCE compares dates in the server's zone; start a day early.
		y, m, d := q.ReceivedAfter.Add(-24 * time.Hour).UTC().Date()
		criteria.Since = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if q.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "From",
			Value: q.From,
		})
	}
	return criteria
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID:        buf.UID,
		ReceivedAt: buf.InternalDate,
	}

	if buf.Envelope != nil {
		env.MessageID = bracket(buf.Envelope.MessageID)
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		for _, from := range buf.Envelope.From {
			env.From = append(env.From, model.Participant{Name: from.Name, Email: from.Addr()})
		}
		if len(buf.Envelope.InReplyTo) > 0 {
			env.InReplyTo = bracket(buf.Envelope.InReplyTo[0])
		}
	}

	return env
}

// parseHeaderBlock reads an RFC 5322 header block into name/value pairs.
func parseHeaderBlock(raw []byte) (provider.Headers, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty header block: %w", provider.ErrNotFound)
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing header block: %w", err)
	}

	var out provider.Headers
	fields := h.Fields()
	for fields.Next() {
		out = append(out, provider.Header{Name: fields.Key(), Value: fields.Value()})
	}
	return out, nil
}

// bracket wraps a bare msg-id in angle brackets.
func bracket(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
