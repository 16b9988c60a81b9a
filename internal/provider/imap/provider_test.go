package imap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
	"github.com/nhle/mailscript/internal/testutil"
)

var (
	alice = model.Participant{Name: "Alice", Email: "alice@example.com"}
	bob   = model.Participant{Name: "Bob", Email: "bob@example.com"}
	carol = model.Participant{Name: "Carol", Email: "carol@example.com"}
)

func TestCompose(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := provider.SendRequest{
		From:    []model.Participant{alice},
		To:      []model.Participant{bob},
		Cc:      []model.Participant{carol},
		Bcc:     []model.Participant{{Email: "audit@example.com"}, bob},
		Subject: "Re: Plans",
		Body:    "<p>lunch?</p>",
		Headers: provider.Headers{{Name: "X-Batch-ID", Value: "batch-1"}},
	}

	msg, err := compose(req, "<parent@mail.example.com>", now)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.from)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com", "audit@example.com"}, msg.rcpts)
	assert.Regexp(t, `^<.+@.+>$`, msg.messageID)

	mr, err := mail.CreateReader(bytes.NewReader(msg.raw))
	require.NoError(t, err)
	defer mr.Close()

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Plans", subject)

	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, msg.messageID, "<"+id+">")

	inReplyTo, err := mr.Header.MsgIDList("In-Reply-To")
	require.NoError(t, err)
	assert.Equal(t, []string{"parent@mail.example.com"}, inReplyTo)

	refs, err := mr.Header.MsgIDList("References")
	require.NoError(t, err)
	assert.Equal(t, []string{"parent@mail.example.com"}, refs)

	assert.Equal(t, "batch-1", mr.Header.Get("X-Batch-ID"))
	assert.Empty(t, mr.Header.Get("Bcc"))

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "bob@example.com", to[0].Address)

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>lunch?</p>", string(body))
}

func TestCompose_Unthreaded(t *testing.T) {
	msg, err := compose(provider.SendRequest{
		From:    []model.Participant{alice},
		Subject: "note to self",
	}, "", time.Now())
	require.NoError(t, err)
	assert.Empty(t, msg.rcpts)

	mr, err := mail.CreateReader(bytes.NewReader(msg.raw))
	require.NoError(t, err)
	defer mr.Close()
	assert.Empty(t, mr.Header.Get("In-Reply-To"))
	assert.Empty(t, mr.Header.Get("References"))
}

func TestCompose_NoSender(t *testing.T) {
	_, err := compose(provider.SendRequest{Subject: "x"}, "", time.Now())
	assert.Error(t, err)
}

func TestSearchCriteria(t *testing.T) {
	after := time.Date(2024, 5, 1, 0, 0, 30, 0, time.UTC)

	c := searchCriteria(provider.ListQuery{From: "alice@example.com", ReceivedAfter: after})
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), c.Since)
	assert.Equal(t, []imap.SearchCriteriaHeaderField{{Key: "From", Value: "alice@example.com"}}, c.Header)

	empty := searchCriteria(provider.ListQuery{})
	assert.True(t, empty.Since.IsZero())
	assert.Empty(t, empty.Header)
}

func TestParseHeaderBlock(t *testing.T) {
	raw := "Subject: Hello\r\nMessage-ID: <abc@x>\r\nX-Batch-ID: b-1\r\n\r\n"

	h, err := parseHeaderBlock([]byte(raw))
	require.NoError(t, err)

	rfc, ok := h.MessageID()
	require.True(t, ok)
	assert.Equal(t, "<abc@x>", rfc)

	batch, ok := h.Get("x-batch-id")
	require.True(t, ok)
	assert.Equal(t, "b-1", batch)

	_, err = parseHeaderBlock(nil)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestEnvelopeToMessage(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := envelopeToMessage(Envelope{
		UID:        42,
		MessageID:  "<abc@x>",
		Subject:    "Hello",
		From:       []model.Participant{alice},
		ReceivedAt: received,
	})

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, []model.Participant{alice}, msg.From)
	assert.Equal(t, received, msg.ReceivedAt)

	rfc, ok := msg.Headers.MessageID()
	require.True(t, ok)
	assert.Equal(t, "<abc@x>", rfc)
}

func TestBracket(t *testing.T) {
	assert.Equal(t, "<a@b>", bracket("a@b"))
	assert.Equal(t, "<a@b>", bracket("<a@b>"))
	assert.Equal(t, "", bracket("  "))
	assert.Equal(t, "a@b", trimBrackets("<a@b>"))
	assert.Equal(t, "a@b", trimBrackets("a@b"))
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("17")
	require.NoError(t, err)
	assert.Equal(t, imap.UID(17), uid)

	_, err = parseUID("<abc@x>")
	assert.Error(t, err)
}

func TestMessageRef(t *testing.T) {
	assert.Equal(t, "7", messageRef("INBOX", 7))
	assert.Equal(t, "7", messageRef("", 7))
	assert.Equal(t, "Sent:7", messageRef("Sent", 7))
	assert.Equal(t, "[Gmail]/Sent Mail:9", messageRef("[Gmail]/Sent Mail", 9))

	tests := []struct {
		ref     string
		mailbox string
		uid     imap.UID
		wantErr bool
	}{
		{ref: "7", mailbox: "INBOX", uid: 7},
		{ref: "Sent:7", mailbox: "Sent", uid: 7},
		{ref: "a:b:12", mailbox: "a:b", uid: 12},
		{ref: ":7", wantErr: true},
		{ref: "Sent:x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			mailbox, uid, err := parseRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mailbox, mailbox)
			assert.Equal(t, tt.uid, uid)
		})
	}
}

func TestMergeRecent_IncludesOwnSentMessages(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	received := []Envelope{
		{Mailbox: "INBOX", UID: 3, ReceivedAt: base.Add(time.Minute)},
		{Mailbox: "INBOX", UID: 4, ReceivedAt: base.Add(3 * time.Minute)},
	}
	sent := []Envelope{
		{Mailbox: "Sent", UID: 3, MessageID: "<own@x>", ReceivedAt: base.Add(2 * time.Minute)},
	}

	all := mergeRecent(received, sent, 0)
	require.Len(t, all, 3)
	var refs []string
	for _, env := range all {
		refs = append(refs, envelopeToMessage(env).ID)
	}
	assert.Equal(t, []string{"3", "Sent:3", "4"}, refs)

	newest := mergeRecent(received, sent, 2)
	require.Len(t, newest, 2)
	assert.Equal(t, "Sent", newest[0].Mailbox)
	assert.Equal(t, imap.UID(4), newest[1].UID)
}

func TestListedEnvelope(t *testing.T) {
	var logs bytes.Buffer
	c := NewIMAPClient("imap.example.com", "993", "bob", "pw", true, zerolog.New(&logs))
	after := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, ok := c.listedEnvelope("INBOX", 5, nil, errors.New("truncated literal"), after)
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "skipping unreadable message")
	assert.Contains(t, logs.String(), "truncated literal")

	old := &imapclient.FetchMessageBuffer{UID: 1, InternalDate: after.Add(-time.Minute)}
	_, ok = c.listedEnvelope("INBOX", 1, old, nil, after)
	assert.False(t, ok)

	fresh := &imapclient.FetchMessageBuffer{
		UID:          2,
		InternalDate: after.Add(time.Minute),
		Envelope:     &imap.Envelope{MessageID: "own@x", Subject: "Hi"},
	}
	env, ok := c.listedEnvelope("Sent", 2, fresh, nil, after)
	require.True(t, ok)
	assert.Equal(t, "Sent", env.Mailbox)
	assert.Equal(t, "<own@x>", env.MessageID)
	assert.Equal(t, "Sent:2", envelopeToMessage(env).ID)
}

func TestSubmit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, useTLS := range []bool{true, false} {
		cfg := SMTPConfig{Host: "127.0.0.1", Port: "1", TLS: useTLS}
		err := submit(ctx, cfg, "alice@example.com", []string{"bob@example.com"}, []byte("x"))
		assert.ErrorIs(t, err, context.Canceled, "tls=%v", useTLS)
		assert.ErrorContains(t, err, "dialing SMTP 127.0.0.1:1")
	}
}

func TestProvider_CredentialFailure(t *testing.T) {
	noCreds := errors.New("no such key")
	p := New(model.IMAPConfig{Host: "imap.example.com", Port: "993"}, model.SMTPConfig{},
		func(string) (string, string, error) { return "", "", noCreds },
		testutil.Logger(t))

	_, err := p.ListRecent(context.Background(), "grant-bob", provider.ListQuery{})
	assert.ErrorIs(t, err, noCreds)

	_, err = p.Send(context.Background(), "grant-bob", provider.SendRequest{})
	assert.ErrorIs(t, err, noCreds)

	_, err = p.FetchHeaders(context.Background(), "grant-bob", "<x@y>")
	assert.ErrorIs(t, err, noCreds)
	assert.Equal(t, "Sent", p.imapCfg.SentMailbox)
}
