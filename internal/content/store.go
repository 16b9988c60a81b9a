// Package content loads sender identities and scripted emails from YAML
// files and resolves sender keys into addresses.
package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/nhle/mailscript/internal/model"
)

// rawSender mirrors one entry of a senders file. Pointers distinguish an
// absent key from an empty value.
type rawSender struct {
	Email   *string `yaml:"email"`
	Name    *string `yaml:"name"`
	GrantID *string `yaml:"grant_id"`
}

// rawEmail mirrors one entry of a conversation file.
type rawEmail struct {
	ID        *string  `yaml:"id"`
	From      *string  `yaml:"from"`
	To        []string `yaml:"to"`
	Cc        []string `yaml:"cc"`
	Bcc       []string `yaml:"bcc"`
	Subject   *string  `yaml:"subject"`
	Content   *string  `yaml:"content"`
	Timestamp *string  `yaml:"timestamp"`
	InReplyTo *string  `yaml:"in_reply_to"`
}

// Store is the in-memory sender directory for one run.
type Store struct {
	senders map[string]model.Sender
	log     zerolog.Logger
}

// NewStore wraps an already loaded sender set.
func NewStore(senders map[string]model.Sender, log zerolog.Logger) *Store {
	if senders == nil {
		senders = map[string]model.Sender{}
	}
	return &Store{senders: senders, log: log}
}

// Open loads the senders file at path into a new Store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	senders, err := LoadSendersFile(path)
	if err != nil {
		return nil, err
	}
	store := NewStore(senders, log)
	log.Debug().Str("path", path).Int("count", store.Len()).Msg("loaded senders")
	return store, nil
}

// LoadSendersFile opens path and parses it with LoadSenders.
func LoadSendersFile(path string) (map[string]model.Sender, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening senders file: %w", err)
	}
	defer f.Close()

	return LoadSenders(f, path)
}

// LoadSenders parses a YAML mapping of key -> {email, name, grant_id}.
// All three fields are required.
func LoadSenders(r io.Reader, source string) (map[string]model.Sender, error) {
	var raw map[string]rawSender
	if err := decode(r, source, &raw); err != nil {
		return nil, err
	}

	senders := make(map[string]model.Sender, len(raw))
	for key, entry := range raw {
		fields := []struct {
			name  string
			value *string
		}{
			{"email", entry.Email},
			{"name", entry.Name},
			{"grant_id", entry.GrantID},
		}
		for _, f := range fields {
			if f.value == nil {
				return nil, &ParseError{Source: source, Entry: key, Field: f.name, Err: errMissingField}
			}
		}

		senders[key] = model.Sender{
			Key:     key,
			Email:   *entry.Email,
			Name:    *entry.Name,
			GrantID: *entry.GrantID,
		}
	}

	return senders, nil
}

// LoadEmailsFile opens path and parses it with LoadEmails.
func LoadEmailsFile(path string) ([]model.EmailRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening emails file: %w", err)
	}
	defer f.Close()

	return LoadEmails(f, path)
}

// LoadEmails parses a YAML list of scripted emails, keeping file order.
// id, from, subject and content are required; to/cc/bcc default to
// empty and timestamp/in_reply_to to absent.
func LoadEmails(r io.Reader, source string) ([]model.EmailRecord, error) {
	var raw []rawEmail
	if err := decode(r, source, &raw); err != nil {
		return nil, err
	}

	emails := make([]model.EmailRecord, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, entry := range raw {
		label := fmt.Sprintf("#%d", i+1)
		if entry.ID != nil && *entry.ID != "" {
			label = *entry.ID
		}

		if entry.ID == nil || *entry.ID == "" {
			return nil, &ParseError{Source: source, Entry: label, Field: "id", Err: errMissingField}
		}
		if entry.From == nil || *entry.From == "" {
			return nil, &ParseError{Source: source, Entry: label, Field: "from", Err: errMissingField}
		}
		if entry.Subject == nil {
			return nil, &ParseError{Source: source, Entry: label, Field: "subject", Err: errMissingField}
		}
		if entry.Content == nil {
			return nil, &ParseError{Source: source, Entry: label, Field: "content", Err: errMissingField}
		}
		if seen[*entry.ID] {
			return nil, &ParseError{Source: source, Entry: label, Field: "id", Err: errors.New("duplicate email id")}
		}
		seen[*entry.ID] = true

		rec := model.EmailRecord{
			ID:      *entry.ID,
			From:    *entry.From,
			To:      nonNil(entry.To),
			Cc:      nonNil(entry.Cc),
			Bcc:     nonNil(entry.Bcc),
			Subject: *entry.Subject,
			Content: *entry.Content,
		}
		if entry.InReplyTo != nil {
			rec.InReplyTo = *entry.InReplyTo
		}

		if entry.Timestamp != nil && strings.TrimSpace(*entry.Timestamp) != "" {
			ts, err := ParseTimestamp(*entry.Timestamp)
			if err != nil {
				return nil, &ParseError{Source: source, Entry: label, Field: "timestamp", Err: err}
			}
			rec.Timestamp = &ts
			rec.RawTimestamp = *entry.Timestamp
		}

		emails = append(emails, rec)
	}

	return emails, nil
}

// compactDate is the all-digit YYYYMMDD form, checked before Unix seconds.
const compactDate = "20060102"

// ParseTimestamp accepts a compact YYYYMMDD date, Unix seconds or any
// date layout spf13/cast understands (RFC 3339, "2006-01-02 15:04:05",
// RFC 1123, ...). An eight-digit value that is a valid calendar date is
// read as a date, not as seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == len(compactDate) {
		if ts, err := time.Parse(compactDate, raw); err == nil {
			return ts, nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	ts, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// Sender looks up a sender by key.
func (s *Store) Sender(key string) (model.Sender, bool) {
	sender, ok := s.senders[key]
	return sender, ok
}

// Len returns the number of known senders.
func (s *Store) Len() int {
	return len(s.senders)
}

// Senders returns a copy of every loaded sender keyed by sender key.
func (s *Store) Senders() map[string]model.Sender {
	out := make(map[string]model.Sender, len(s.senders))
	for k, v := range s.senders {
		out[k] = v
	}
	return out
}

// ResolveRecipients maps sender keys to participants. Unknown keys are
// logged and skipped, so the result may be shorter than keys.
func (s *Store) ResolveRecipients(keys []string) []model.Participant {
	resolved, _ := s.ResolveRecipientsReport(keys)
	return resolved
}

// ResolveRecipientsReport is ResolveRecipients that also returns the
// keys that were dropped, in input order.
func (s *Store) ResolveRecipientsReport(keys []string) ([]model.Participant, []string) {
	resolved := make([]model.Participant, 0, len(keys))
	var dropped []string
	for _, key := range keys {
		sender, ok := s.senders[key]
		if !ok {
			s.log.Warn().Str("sender_key", key).Msg("sender key not found in senders, dropping recipient")
			dropped = append(dropped, key)
			continue
		}
		resolved = append(resolved, sender.Participant())
	}
	return resolved, dropped
}

// decode reads one YAML document into out, mapping syntax errors and
// empty input to a ParseError.
func decode(r io.Reader, source string, out interface{}) error {
	if err := yaml.NewDecoder(r).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseError{Source: source, Err: errEmptyFile}
		}
		return &ParseError{Source: source, Err: err}
	}
	return nil
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
