// Package app wires configuration, content, provider and dispatch into
// one batch run.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/nhle/mailscript/internal/content"
	"github.com/nhle/mailscript/internal/credential"
	"github.com/nhle/mailscript/internal/dispatch"
	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/report"
	"github.com/nhle/mailscript/internal/resolver"
)

// Default input locations.
const (
	DefaultConfigPath  = ".config"
	DefaultSendersPath = "./content/senders/example.yaml"
	DefaultEmailsPath  = "./content/conversations/example.yaml"
)

// Options are the command-line inputs of a run.
type Options struct {
	ConfigPath  string
	SendersPath string
	EmailsPath  string
	Verbose     bool

	// Out receives the batch report; nil means stdout.
	Out io.Writer
}

// App runs one batch.
type App struct {
	opts Options
	log  zerolog.Logger

	// secret reads a keyring entry.
	secret func(key string) (string, error)
}

// New creates an App.
func New(opts Options, log zerolog.Logger) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		opts:   opts,
		log:    log,
		secret: credential.Get,
	}
}

// Run loads the inputs, sends the batch and prints the report. A
// returned error is fatal for the process; per-email failures are only
// reported.
func (a *App) Run(ctx context.Context) (*dispatch.Report, error) {
	if a.opts.Verbose {
		a.log.Debug().
			Str("config", a.opts.ConfigPath).
			Str("senders", a.opts.SendersPath).
			Str("emails", a.opts.EmailsPath).
			Msg("input paths")
	}

	cfg, err := model.LoadConfig(a.opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := content.Open(a.opts.SendersPath, a.log)
	if err != nil {
		return nil, fmt.Errorf("loading senders: %w", err)
	}

	p, err := a.buildProvider(cfg, store)
	if err != nil {
		return nil, err
	}

	res := resolver.New(p, resolver.ConfigFrom(cfg.Resolver), a.log)
	orch := dispatch.New(store, p, res, a.log)

	batch, err := orch.SendBatch(ctx, a.opts.EmailsPath)
	if batch != nil {
		if renderErr := report.Render(a.opts.Out, batch); renderErr != nil {
			a.log.Warn().Err(renderErr).Msg("failed to print report")
		}
	}
	return batch, err
}
