// Package nylas implements provider.Provider on the Nylas v3 API. A
// sender's grant ID selects the mailbox for every call.
package nylas

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// Provider talks to the Nylas v3 messages endpoints.
type Provider struct {
	client *Client
	log    zerolog.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Nylas provider.
func New(apiURI, clientSecret string, log zerolog.Logger) *Provider {
	if apiURI == "" {
		apiURI = model.DefaultNylasAPIURI
	}
	return &Provider{
		client: NewClient(apiURI, clientSecret),
		log:    log.With().Str("provider", model.ProviderNylas).Logger(),
	}
}

func messagesPath(grantID string) string {
	return "/v3/grants/" + url.PathEscape(grantID) + "/messages"
}

// ListRecent implements provider.Provider.
func (p *Provider) ListRecent(
	ctx context.Context, grantID string, q provider.ListQuery,
) ([]provider.Message, error) {
	params := url.Values{}
	if q.From != "" {
		params.Set("from", q.From)
	}
	if !q.ReceivedAfter.IsZero() {
		params.Set("received_after", strconv.FormatInt(q.ReceivedAfter.Unix(), 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.IncludeHeaders {
		params.Set("fields", "include_headers")
	}

	var resp ListMessagesResponse
	if err := p.client.Get(ctx, messagesPath(grantID), params, &resp); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	p.log.Debug().
		Str("grant_id", grantID).
		Str("request_id", resp.RequestID).
		Int("count", len(resp.Data)).
		Msg("listed messages")

	out := make([]provider.Message, 0, len(resp.Data))
	for _, msg := range resp.Data {
		out = append(out, toMessage(msg))
	}
	return out, nil
}

// Send implements provider.Provider.
func (p *Provider) Send(
	ctx context.Context, grantID string, req provider.SendRequest,
) (*provider.SentMessage, error) {
	body := SendMessageRequest{
		Subject:          req.Subject,
		Body:             req.Body,
		From:             toEmailNames(req.From),
		To:               toEmailNames(req.To),
		Cc:               toEmailNames(req.Cc),
		Bcc:              toEmailNames(req.Bcc),
		ReplyToMessageID: req.ReplyToMessageID,
		CustomHeaders:    toHeaders(req.Headers),
	}
	if body.To == nil {
		body.To = []EmailName{}
	}

	var resp MessageResponse
	if err := p.client.Post(ctx, messagesPath(grantID)+"/send", body, &resp); err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("sending message: response carried no message id (request %s)", resp.RequestID)
	}

	p.log.Debug().
		Str("grant_id", grantID).
		Str("request_id", resp.RequestID).
		Str("message_id", resp.Data.ID).
		Msg("message accepted")

	return &provider.SentMessage{ID: resp.Data.ID, ThreadID: resp.Data.ThreadID}, nil
}

// FetchHeaders implements provider.Provider.
func (p *Provider) FetchHeaders(
	ctx context.Context, grantID, messageID string,
) (provider.Headers, error) {
	params := url.Values{"fields": []string{"include_headers"}}

	var resp MessageResponse
	path := messagesPath(grantID) + "/" + url.PathEscape(messageID)
	if err := p.client.Get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}

	return toProviderHeaders(resp.Data.Headers), nil
}

func toMessage(msg Message) provider.Message {
	out := provider.Message{
		ID:      msg.ID,
		Subject: msg.Subject,
		Headers: toProviderHeaders(msg.Headers),
	}
	if msg.Date > 0 {
		out.ReceivedAt = time.Unix(msg.Date, 0)
	}
	for _, f := range msg.From {
		out.From = append(out.From, model.Participant{Name: f.Name, Email: f.Email})
	}
	return out
}

func toEmailNames(ps []model.Participant) []EmailName {
	if len(ps) == 0 {
		return nil
	}
	out := make([]EmailName, 0, len(ps))
	for _, p := range ps {
		out = append(out, EmailName{Name: p.Name, Email: p.Email})
	}
	return out
}

func toHeaders(h provider.Headers) []Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]Header, 0, len(h))
	for _, header := range h {
		out = append(out, Header{Name: header.Name, Value: header.Value})
	}
	return out
}

func toProviderHeaders(h []Header) provider.Headers {
	out := make(provider.Headers, 0, len(h))
	for _, header := range h {
		out = append(out, provider.Header{Name: header.Name, Value: header.Value})
	}
	return out
}
