// Package dispatch sends a scripted batch of emails in timestamp order,
// threading replies onto messages sent earlier in the same batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/content"
	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
)

// Custom headers attached to every outgoing message.
const (
	HeaderThreadTimestamp = "X-Thread-Timestamp"
	HeaderBatchID         = "X-Batch-ID"
)

// ErrNoMessageID is returned when a sent message's stored headers carry
// no Message-ID, leaving nothing for replies to thread onto.
var ErrNoMessageID = errors.New("stored headers carry no Message-ID")

// AnchorResolver finds the provider-native anchor for a reply.
type AnchorResolver interface {
	ResolveAnchor(ctx context.Context, accountID, expectedFrom, expectedRFCID string) (string, error)
}

// Orchestrator runs batches against one provider.
type Orchestrator struct {
	store    *content.Store
	provider provider.Provider
	resolver AnchorResolver
	log      zerolog.Logger

	now     func() time.Time
	batchID func() string
}

// New creates an Orchestrator.
func New(
	store *content.Store,
	p provider.Provider,
	r AnchorResolver,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		provider: p,
		resolver: r,
		log:      log.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
		batchID:  uuid.NewString,
	}
}

// SendBatch loads the emails file at path and sends it with SendRecords.
func (o *Orchestrator) SendBatch(ctx context.Context, path string) (*Report, error) {
	records, err := content.LoadEmailsFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading emails: %w", err)
	}
	o.log.Info().Str("path", path).Int("count", len(records)).Msg("sending emails")
	return o.SendRecords(ctx, records)
}

// SendRecords sends records in timestamp order. An unknown from key
// aborts the batch before anything is sent; every other failure is
// confined to its record. The returned error is non-nil only for such a
// precondition failure or when ctx ends the batch early, in which case
// the partial report is still returned.
func (o *Orchestrator) SendRecords(ctx context.Context, records []model.EmailRecord) (*Report, error) {
	if err := o.validateSenders(records); err != nil {
		return nil, err
	}

	report := &Report{
		BatchID: o.batchID(),
		Index:   NewThreadIndex(),
	}
	log := o.log.With().Str("batch_id", report.BatchID).Logger()

	sorted := SortByTimestamp(records)
	batch := make(map[string]model.EmailRecord, len(sorted))
	for _, rec := range sorted {
		batch[rec.ID] = rec
	}

	for _, rec := range sorted {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining", len(sorted)-len(report.Outcomes)).Msg("batch interrupted")
			return report, err
		}

		run := &sendRun{
			o:       o,
			log:     log.With().Str("email_id", rec.ID).Str("timestamp", rec.RawTimestamp).Logger(),
			batchID: report.BatchID,
			batch:   batch,
			index:   report.Index,
		}
		report.Outcomes = append(report.Outcomes, run.send(ctx, rec))
	}

	sent, failed := report.Counts()
	log.Info().Int("sent", sent).Int("failed", failed).Msg("batch finished")
	return report, nil
}

// validateSenders checks that every record's from key is known.
func (o *Orchestrator) validateSenders(records []model.EmailRecord) error {
	for _, rec := range records {
		if _, ok := o.store.Sender(rec.From); !ok {
			return &UnknownSenderError{EmailID: rec.ID, SenderKey: rec.From}
		}
	}
	return nil
}

// sendRun carries the per-record state through the pipeline.
type sendRun struct {
	o       *Orchestrator
	log     zerolog.Logger
	batchID string
	batch   map[string]model.EmailRecord
	index   *ThreadIndex
	out     Outcome
}

func (r *sendRun) transition(s Status) {
	if r.out.Status.Terminal() {
		r.log.Warn().Str("from", string(r.out.Status)).Str("to", string(s)).Msg("ignoring transition out of final state")
		return
	}
	r.log.Debug().Str("from", string(r.out.Status)).Str("to", string(s)).Msg("state")
	r.out.Status = s
}

func (r *sendRun) fail(err error) Outcome {
	r.out.Err = err
	r.transition(StatusFailed)
	r.log.Error().Err(err).Msgf("failed to send email ID: %s", r.out.ID)
	return r.out
}

// send moves one record from pending to sent or failed.
func (r *sendRun) send(ctx context.Context, rec model.EmailRecord) Outcome {
	r.out = Outcome{ID: rec.ID, Status: StatusPending}

	sender, ok := r.o.store.Sender(rec.From)
	if !ok {
		return r.fail(&UnknownSenderError{EmailID: rec.ID, SenderKey: rec.From})
	}

	r.transition(StatusResolvingRecipients)
	to, droppedTo := r.o.store.ResolveRecipientsReport(rec.To)
	cc, droppedCc := r.o.store.ResolveRecipientsReport(rec.Cc)
	bcc, droppedBcc := r.o.store.ResolveRecipientsReport(rec.Bcc)
	r.out.Dropped = append(append(append([]string(nil), droppedTo...), droppedCc...), droppedBcc...)

	anchor, err := r.anchor(ctx, rec, sender)
	if err != nil {
		return r.fail(err)
	}

	r.transition(StatusSending)
	req := provider.SendRequest{
		From:             []model.Participant{sender.Participant()},
		To:               to,
		Cc:               cc,
		Bcc:              bcc,
		Subject:          rec.Subject,
		Body:             rec.Content,
		ReplyToMessageID: anchor,
		Headers: provider.Headers{
			{Name: HeaderThreadTimestamp, Value: r.o.now().UTC().Format(time.RFC3339Nano)},
			{Name: HeaderBatchID, Value: r.batchID},
		},
	}

	sent, err := r.o.provider.Send(ctx, sender.GrantID, req)
	if err != nil {
		return r.fail(fmt.Errorf("sending: %w", err))
	}
	r.out.ProviderID = sent.ID

	headers, err := r.o.provider.FetchHeaders(ctx, sender.GrantID, sent.ID)
	if err != nil {
		return r.fail(fmt.Errorf("fetching stored headers of %s: %w", sent.ID, err))
	}
	rfcID, ok := headers.MessageID()
	if !ok || rfcID == "" {
		return r.fail(fmt.Errorf("message %s: %w", sent.ID, ErrNoMessageID))
	}

	r.index.Record(rec.ID, rfcID, sent.ID)
	r.out.RFCMessageID = rfcID
	r.transition(StatusSent)
	r.log.Info().
		Str("provider_id", sent.ID).
		Str("message_id", rfcID).
		Bool("threaded", r.out.Threaded).
		Msg("sent email")

	return r.out
}

// anchor returns the reply anchor for rec, or "" when it is sent
// unthreaded. Only anchor resolution itself can fail.
func (r *sendRun) anchor(ctx context.Context, rec model.EmailRecord, sender model.Sender) (string, error) {
	if !rec.IsReply() {
		return "", nil
	}

	parentRFC, hasRFC := r.index.RFCMessageID(rec.InReplyTo)
	parent, inBatch := r.batch[rec.InReplyTo]
	if !hasRFC || !inBatch {
		switch {
		case !inBatch:
			r.out.Fallback = fmt.Sprintf("parent %q is not in this batch", rec.InReplyTo)
		default:
			r.out.Fallback = fmt.Sprintf("parent %q has no recorded Message-ID", rec.InReplyTo)
		}
		r.log.Info().Str("in_reply_to", rec.InReplyTo).Str("reason", r.out.Fallback).Msg("sending reply unthreaded")
		return "", nil
	}

	parentSender, ok := r.o.store.Sender(parent.From)
	if !ok {
		return "", &UnknownSenderError{EmailID: parent.ID, SenderKey: parent.From}
	}

	r.transition(StatusResolvingAnchor)
	if pid, ok := r.index.ProviderID(rec.InReplyTo); ok {
		r.log.Debug().Str("in_reply_to", rec.InReplyTo).Str("parent_provider_id", pid).Msg("resolving reply anchor")
	}
	anchor, err := r.o.resolver.ResolveAnchor(ctx, sender.GrantID, parentSender.Email, parentRFC)
	if err != nil {
		return "", err
	}

	r.out.Threaded = true
	r.out.Anchor = anchor
	return anchor, nil
}
