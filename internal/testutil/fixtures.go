// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/model"
)

// WriteFile writes body to name inside a per-test temp dir and returns
// the path. The directory is removed when the test completes.
func WriteFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

// Senders returns the alice/bob/carol identities used across tests.
func Senders() map[string]model.Sender {
	return map[string]model.Sender{
		"alice": {Key: "alice", Email: "alice@example.com", Name: "Alice", GrantID: "grant-alice"},
		"bob":   {Key: "bob", Email: "bob@example.com", Name: "Bob", GrantID: "grant-bob"},
		"carol": {Key: "carol", Email: "carol@example.com", Name: "Carol", GrantID: "grant-carol"},
	}
}

// Logger returns a zerolog.Logger that writes through t.Log.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
