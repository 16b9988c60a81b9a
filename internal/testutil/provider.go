package testutil

import (
	"context"
	"fmt"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// ListCall records one ListRecent invocation.
type ListCall struct {
	Account string
	Query   provider.ListQuery
}

// SendCall records one Send invocation.
type SendCall struct {
	Account string
	Request provider.SendRequest
}

// FetchCall records one FetchHeaders invocation.
type FetchCall struct {
	Account   string
	MessageID string
}

// FakeProvider is an in-memory provider.Provider. By default every send
// is accepted as "sent-N" with Message-ID "<rfc-N@fake.test>" and a
// received copy "recv-N" becomes visible to ListRecent at once. The
// hook fields override individual calls.
type FakeProvider struct {
	ListFunc  func(ctx context.Context, account string, q provider.ListQuery) ([]provider.Message, error)
	SendFunc  func(ctx context.Context, account string, req provider.SendRequest) (*provider.SentMessage, error)
	FetchFunc func(ctx context.Context, account, messageID string) (provider.Headers, error)

	ListCalls  []ListCall
	SendCalls  []SendCall
	FetchCalls []FetchCall

	received []provider.Message
	headers  map[string]provider.Headers
	seq      int
}

// NewFakeProvider returns an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{headers: make(map[string]provider.Headers)}
}

var _ provider.Provider = (*FakeProvider)(nil)

// ListRecent implements provider.Provider.
func (f *FakeProvider) ListRecent(
	ctx context.Context, account string, q provider.ListQuery,
) ([]provider.Message, error) {
	f.ListCalls = append(f.ListCalls, ListCall{Account: account, Query: q})
	if f.ListFunc != nil {
		return f.ListFunc(ctx, account, q)
	}

	var out []provider.Message
	for _, msg := range f.received {
		if len(msg.From) > 0 && msg.From[0].Email == q.From {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Send implements provider.Provider.
func (f *FakeProvider) Send(
	ctx context.Context, account string, req provider.SendRequest,
) (*provider.SentMessage, error) {
	f.SendCalls = append(f.SendCalls, SendCall{Account: account, Request: req})
	if f.SendFunc != nil {
		return f.SendFunc(ctx, account, req)
	}

	f.seq++
	id := fmt.Sprintf("sent-%d", f.seq)
	rfc := fmt.Sprintf("<rfc-%d@fake.test>", f.seq)
	f.headers[id] = provider.Headers{
		{Name: "Subject", Value: req.Subject},
		{Name: provider.HeaderMessageID, Value: rfc},
	}
	f.received = append(f.received, provider.Message{
		ID:      fmt.Sprintf("recv-%d", f.seq),
		From:    append([]model.Participant(nil), req.From...),
		Subject: req.Subject,
		Headers: provider.Headers{{Name: "message-id", Value: rfc}},
	})

	return &provider.SentMessage{ID: id}, nil
}

// FetchHeaders implements provider.Provider.
func (f *FakeProvider) FetchHeaders(
	ctx context.Context, account, messageID string,
) (provider.Headers, error) {
	f.FetchCalls = append(f.FetchCalls, FetchCall{Account: account, MessageID: messageID})
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, account, messageID)
	}

	h, ok := f.headers[messageID]
	if !ok {
		return nil, fmt.Errorf("fetching %s: %w", messageID, provider.ErrNotFound)
	}
	return h, nil
}

// SentSubjects returns the subjects of all Send calls in order.
func (f *FakeProvider) SentSubjects() []string {
	subjects := make([]string, 0, len(f.SendCalls))
	for _, call := range f.SendCalls {
		subjects = append(subjects, call.Request.Subject)
	}
	return subjects
}
