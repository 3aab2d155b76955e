package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/config"
	"github.com/spec-kit/itsm-portal/internal/observability"
	"github.com/spec-kit/itsm-portal/internal/portalclient"
	"github.com/spec-kit/itsm-portal/internal/session"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

const (
	exitFailure        = 1
	exitSessionExpired = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&cliApp{})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(root, err))
	}
}

// cliApp carries the state shared by every subcommand.
type cliApp struct {
	server string
	format string

	logger *zap.Logger
	client *portalclient.Client
}

func newRootCommand(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Work with the IT ticket portal from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.server, "server", "", "portal base URL (default $PORTAL_URL)")
	flags.StringVarP(&app.format, "output", "o", formatTable, "output format (table|json|yaml)")

	cmd.AddCommand(
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoAmICommand(app),
		newTicketCommand(app),
	)
	return cmd
}

// connect builds the client once. Tests install their own client first.
func (a *cliApp) connect(ctx context.Context) error {
	if err := validateFormat(a.format); err != nil {
		return err
	}
	if a.client != nil {
		return nil
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.BaseURL = a.server
	}

	logger, err := observability.NewConsoleLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = logger

	store := session.NewStore(logger.Named("session"), session.WithDurable(session.NewTokenFile(cfg.SessionFile)))
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	client, err := portalclient.New(cfg.BaseURL, store,
		portalclient.WithLogger(logger),
		portalclient.WithProactiveThreshold(cfg.ProactiveThreshold()),
		portalclient.WithRefreshTimeout(cfg.RefreshTimeout()),
		portalclient.WithTimeout(cfg.RequestTimeout()),
	)
	if err != nil {
		return err
	}
	a.client = client
	logger.Debug("client ready", zap.String("server", cfg.BaseURL), zap.String("session_file", cfg.SessionFile))
	return nil
}

func reportError(cmd *cobra.Command, err error) int {
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return exitFailure
	}
	switch de.Code {
	case apperrors.CodeSessionExpired, apperrors.CodeUnauthorized:
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s (run `ticketctl login`)\n", de.Message)
		return exitSessionExpired
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %s\n", de.Code, de.Message)
		return exitFailure
	}
}
