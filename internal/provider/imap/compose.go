package imap

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// composed is an RFC 5322 message ready for submission.
type composed struct {
	raw       []byte
	messageID string // bracketed
	from      string
	rcpts     []string
}

// compose renders req as a single-part HTML message. parentID, when
// set, is the bracketed Message-ID of the message being replied to.
// Bcc recipients are only part of the SMTP envelope.
func compose(req provider.SendRequest, parentID string, now time.Time) (*composed, error) {
	if len(req.From) == 0 {
		return nil, fmt.Errorf("composing message: no sender")
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(req.Subject)
	h.SetAddressList("From", toAddresses(req.From))
	if len(req.To) > 0 {
		h.SetAddressList("To", toAddresses(req.To))
	}
	if len(req.Cc) > 0 {
		h.SetAddressList("Cc", toAddresses(req.Cc))
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating Message-ID: %w", err)
	}
	if parentID != "" {
		bare := []string{trimBrackets(parentID)}
		h.SetMsgIDList("In-Reply-To", bare)
		h.SetMsgIDList("References", bare)
	}
	for _, header := range req.Headers {
		h.Set(header.Name, header.Value)
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	id, err := h.MessageID()
	if err != nil {
		return nil, fmt.Errorf("reading generated Message-ID: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("writing message header: %w", err)
	}
	if _, err := io.WriteString(w, req.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}

	return &composed{
		raw:       buf.Bytes(),
		messageID: bracket(id),
		from:      req.From[0].Email,
		rcpts:     envelopeRecipients(req),
	}, nil
}

// envelopeRecipients lists every To, Cc and Bcc address once.
func envelopeRecipients(req provider.SendRequest) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]model.Participant{req.To, req.Cc, req.Bcc} {
		for _, p := range list {
			if p.Email == "" || seen[p.Email] {
				continue
			}
			seen[p.Email] = true
			out = append(out, p.Email)
		}
	}
	return out
}

func toAddresses(ps []model.Participant) []*mail.Address {
	out := make([]*mail.Address, 0, len(ps))
	for _, p := range ps {
		out = append(out, &mail.Address{Name: p.Name, Address: p.Email})
	}
	return out
}

func trimBrackets(id string) string {
	if len(id) >= 2 && id[0] == '<' && id[len(id)-1] == '>' {
		return id[1 : len(id)-1]
	}
	return id
}
