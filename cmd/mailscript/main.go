// Command mailscript sends a scripted conversation through an email
// provider, threading replies onto the messages they answer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhle/mailscript/internal/app"
	"github.com/nhle/mailscript/internal/logging"
)

func main() {
	opts := app.Options{}

	flags := pflag.NewFlagSet("mailscript", pflag.ContinueOnError)
	flags.StringVar(&opts.ConfigPath, "config", app.DefaultConfigPath, "path to the config file (INI, or TOML, YAML or JSON by extension)")
	flags.StringVar(&opts.SendersPath, "senders", app.DefaultSendersPath, "path to the senders YAML file")
	flags.StringVar(&opts.EmailsPath, "emails", app.DefaultEmailsPath, "path to the conversation YAML file")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mailscript [flags]\n\n%s", flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	log := logging.New(logging.Options{Verbose: opts.Verbose})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.New(opts, log).Run(ctx); err != nil {
		log.Error().Err(err).Msg("mailscript failed")
		stop()
		os.Exit(1)
	}
}
