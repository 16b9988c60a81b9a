package app

import (
	"errors"
	"fmt"

	"github.com/nhle/mailscript/internal/content"
	"github.com/nhle/mailscript/internal/credential"
	"github.com/nhle/mailscript/internal/model"
	"github.com/nhle/mailscript/internal/provider"
	"github.com/nhle/mailscript/internal/provider/imap"
	"github.com/nhle/mailscript/internal/provider/logprovider"
	"github.com/nhle/mailscript/internal/provider/nylas"
)

// buildProvider creates the configured backend. Secrets missing from the
// config file are loaded from the system keyring.
func (a *App) buildProvider(cfg *model.AppConfig, store *content.Store) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case model.ProviderNylas:
		secret, err := a.nylasSecret(cfg.Nylas)
		if err != nil {
			return nil, err
		}
		return nylas.New(cfg.Nylas.APIURI, secret, a.log), nil

	case model.ProviderIMAP:
		login := func(account string) (string, string, error) {
			password, err := a.secret(credential.IMAPPasswordKey(account))
			if err != nil {
				return "", "", err
			}
			return account, password, nil
		}
		return imap.New(cfg.IMAP, cfg.SMTP, login, a.log), nil

	case model.ProviderLog:
		a.log.Info().Msg("dry run: messages are logged, not sent")
		return logprovider.New(store.Senders(), a.log), nil

	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

// nylasSecret returns the client secret from the config, falling back to
// the keyring.
func (a *App) nylasSecret(cfg model.NylasConfig) (string, error) {
	if cfg.ClientSecret != "" {
		return cfg.ClientSecret, nil
	}

	secret, err := a.secret(credential.KeyNylasSecret)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			a.log.Warn().Err(err).Msg("keyring unavailable")
		}
		return "", model.ErrMissingSecret
	}
	if secret == "" {
		return "", model.ErrMissingSecret
	}
	return secret, nil
}
