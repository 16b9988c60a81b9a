// Package resolver turns a parent message's RFC Message-ID into the
// provider-native anchor a reply must reference.
//
// The parent was sent from another mailbox, so the replying sender has to
// find its own received copy. Inbound mail is ingested asynchronously and
// no push channel exists, so the resolver polls the replying account's
// recent inbox until a message from the parent's author carries the
// expected Message-ID, or the ceiling elapses.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/poll"
	"github.com/nhle/mailscript/internal/provider"
)

// Config holds the polling knobs.
type Config struct {
	// Timeout is the wall-clock ceiling for one lookup.
	Timeout time.Duration

	// Interval is the pause between two listings.
	Interval time.Duration

	// Lookback is how far before the lookup start the listing reaches.
	Lookback time.Duration

	// PageSize caps each listing.
	PageSize int
}

// DefaultConfig returns a 60s ceiling, 2s interval, 1 minute window and
// pages of 20 messages.
func DefaultConfig() Config {
	return Config{
		Timeout:  60 * time.Second,
		Interval: 2 * time.Second,
		Lookback: time.Minute,
		PageSize: 20,
	}
}

// ConfigFrom converts the file-level resolver settings.
func ConfigFrom(c model.ResolverConfig) Config {
	return Config{
		Timeout:  c.Timeout(),
		Interval: c.Interval(),
		Lookback: c.Lookback(),
		PageSize: c.PageSize,
	}
}

// Resolver finds reply anchors in a provider's inbox listings.
type Resolver struct {
	provider provider.Provider
	cfg      Config
	log      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Resolver. Zero fields in cfg fall back to DefaultConfig.
func New(p provider.Provider, cfg Config, log zerolog.Logger) *Resolver {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}

	return &Resolver{
		provider: p,
		cfg:      cfg,
		log:      log.With().Str("component", "resolver").Logger(),
		now:      time.Now,
		sleep:    poll.Sleep,
	}
}

// ResolveAnchor polls accountID's recent messages for one from
// expectedFrom whose Message-ID header equals expectedRFCID and returns
// its provider-native ID. It fails with a *poll.TimeoutError once the
// ceiling elapses; listing errors are returned immediately.
func (r *Resolver) ResolveAnchor(
	ctx context.Context,
	accountID, expectedFrom, expectedRFCID string,
) (string, error) {
	start := r.now()
	query := provider.ListQuery{
		From:           expectedFrom,
		ReceivedAfter:  start.Add(-r.cfg.Lookback),
		Limit:          r.cfg.PageSize,
		IncludeHeaders: true,
	}

	log := r.log.With().
		Str("grant_id", accountID).
		Str("from", expectedFrom).
		Str("message_id", expectedRFCID).
		Logger()

	opts := poll.Options{
		Interval: r.cfg.Interval,
		Ceiling:  r.cfg.Timeout,
		Now:      r.now,
		Sleep:    r.sleep,
	}

	anchor, err := poll.Until(ctx, opts, func(ctx context.Context, attempt int) (string, bool, error) {
		log.Info().Int("attempt", attempt).Msg("fetching parent message id")

		messages, err := r.provider.ListRecent(ctx, accountID, query)
		if err != nil {
			return "", false, fmt.Errorf("listing recent messages: %w", err)
		}

		if id, ok := MatchMessageID(messages, expectedRFCID); ok {
			return id, true, nil
		}

		log.Debug().Int("attempt", attempt).Int("listed", len(messages)).Msg("parent not received yet")
		return "", false, nil
	})
	if err != nil {
		if poll.IsTimeout(err) {
			log.Error().Err(err).Msg("timeout reached while fetching parent message id")
		}
		return "", fmt.Errorf("resolving reply anchor for %s: %w", expectedRFCID, err)
	}

	log.Debug().Str("anchor", anchor).Msg("resolved reply anchor")
	return anchor, nil
}

// MatchMessageID returns the ID of the first message whose first
// Message-ID header equals rfcID exactly.
func MatchMessageID(messages []provider.Message, rfcID string) (string, bool) {
	for _, msg := range messages {
		if v, ok := msg.Headers.MessageID(); ok && v == rfcID {
			return msg.ID, true
		}
	}
	return "", false
}
