package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailscript/internal/poll"
	"github.com/nhle/mailscript/internal/provider"
	"github.com/nhle/mailscript/internal/testutil"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// newTestResolver wires a resolver to a fake clock that advances only
// while sleeping.
func newTestResolver(t *testing.T, p provider.Provider, cfg Config) (*Resolver, *time.Time) {
	t.Helper()

	clock := epoch
	r := New(p, cfg, testutil.Logger(t))
	r.now = func() time.Time { return clock }
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		clock = clock.Add(d)
		return nil
	}
	return r, &clock
}

func message(id, rfc string) provider.Message {
	return provider.Message{
		ID:      id,
		Headers: provider.Headers{{Name: "Subject", Value: "x"}, {Name: "Message-Id", Value: rfc}},
	}
}

func TestResolveAnchor_FirstListingMatches(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.ListFunc = func(context.Context, string, provider.ListQuery) ([]provider.Message, error) {
		return []provider.Message{message("m-0", "<other@x>"), message("m-1", "<rfc-1>")}, nil
	}

	r, _ := newTestResolver(t, fake, DefaultConfig())
	anchor, err := r.ResolveAnchor(context.Background(), "grant-bob", "alice@example.com", "<rfc-1>")

	require.NoError(t, err)
	assert.Equal(t, "m-1", anchor)
	require.Len(t, fake.ListCalls, 1)

	call := fake.ListCalls[0]
	assert.Equal(t, "grant-bob", call.Account)
	assert.Equal(t, "alice@example.com", call.Query.From)
	assert.Equal(t, epoch.Add(-time.Minute), call.Query.ReceivedAfter)
	assert.Equal(t, 20, call.Query.Limit)
	assert.True(t, call.Query.IncludeHeaders)
}

func TestResolveAnchor_WaitsForPropagation(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.ListFunc = func(context.Context, string, provider.ListQuery) ([]provider.Message, error) {
		if len(fake.ListCalls) < 3 {
			return nil, nil
		}
		return []provider.Message{message("m-9", "<rfc-9>")}, nil
	}

	r, clock := newTestResolver(t, fake, DefaultConfig())
	anchor, err := r.ResolveAnchor(context.Background(), "grant-bob", "alice@example.com", "<rfc-9>")

	require.NoError(t, err)
	assert.Equal(t, "m-9", anchor)
	assert.Len(t, fake.ListCalls, 3)
	assert.Equal(t, epoch.Add(4*time.Second), *clock)

	// The received-after window is fixed at the first attempt.
	for _, call := range fake.ListCalls {
		assert.Equal(t, epoch.Add(-time.Minute), call.Query.ReceivedAfter)
	}
}

func TestResolveAnchor_Timeout(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.ListFunc = func(context.Context, string, provider.ListQuery) ([]provider.Message, error) {
		return []provider.Message{message("m-1", "<not-it>")}, nil
	}

	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	r, clock := newTestResolver(t, fake, cfg)

	_, err := r.ResolveAnchor(context.Background(), "grant-bob", "alice@example.com", "<rfc-1>")

	require.Error(t, err)
	assert.True(t, poll.IsTimeout(err))
	assert.False(t, clock.Before(epoch.Add(10*time.Second)))
	assert.Len(t, fake.ListCalls, 6)
}

func TestResolveAnchor_ListErrorIsNotRetried(t *testing.T) {
	fake := testutil.NewFakeProvider()
	boom := &provider.AuthError{Provider: "fake", Message: "bad grant"}
	fake.ListFunc = func(context.Context, string, provider.ListQuery) ([]provider.Message, error) {
		return nil, boom
	}

	r, _ := newTestResolver(t, fake, DefaultConfig())
	_, err := r.ResolveAnchor(context.Background(), "grant-bob", "alice@example.com", "<rfc-1>")

	require.Error(t, err)
	assert.True(t, provider.IsAuthError(err))
	assert.False(t, poll.IsTimeout(err))
	assert.Len(t, fake.ListCalls, 1)
}

func TestResolveAnchor_RealClockShortCeiling(t *testing.T) {
	fake := testutil.NewFakeProvider()
	r := New(fake, Config{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond}, testutil.Logger(t))

	started := time.Now()
	_, err := r.ResolveAnchor(context.Background(), "grant-bob", "alice@example.com", "<rfc-1>")

	assert.True(t, errors.Is(err, poll.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	assert.Equal(t, 20, fake.ListCalls[0].Query.Limit)
}

func TestMatchMessageID(t *testing.T) {
	tests := []struct {
		name     string
		messages []provider.Message
		rfc      string
		wantID   string
		wantOK   bool
	}{
		{"empty", nil, "<a>", "", false},
		{"exact match", []provider.Message{message("1", "<a>")}, "<a>", "1", true},
		{"first match wins", []provider.Message{message("1", "<a>"), message("2", "<a>")}, "<a>", "1", true},
		{"no partial match", []provider.Message{message("1", "<a>")}, "a", "", false},
		{"no headers", []provider.Message{{ID: "1"}}, "<a>", "", false},
		{
			"only first Message-ID header counts",
			[]provider.Message{{ID: "1", Headers: provider.Headers{
				{Name: "Message-ID", Value: "<b>"},
				{Name: "Message-ID", Value: "<a>"},
			}}},
			"<a>", "", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := MatchMessageID(tt.messages, tt.rfc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(testutil.NewFakeProvider(), Config{}, testutil.Logger(t))
	assert.Equal(t, DefaultConfig(), r.cfg)
}
