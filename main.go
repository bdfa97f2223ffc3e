package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mchat/api"
	"mchat/chat"
	"mchat/config"
	"mchat/db"
	"mchat/logging"
	"mchat/ui"
)

const avatarRetention = 30 * 24 * time.Hour

var rootCmd = &cobra.Command{
	Use:           "mchat",
	Short:         "Terminal client for the mchat messaging backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the full-screen client (default)",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

var (
	flagServer   string
	flagDBPath   string
	flagLogLevel string
	flagLogFile  string
	flagTimeout  int
	flagPageSize int
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return env.open(cmd)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", "", "backend base URL (env MCHAT_SERVER)")
	flags.StringVar(&flagDBPath, "db", "", "local state database (env MCHAT_DB_PATH)")
	flags.StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error (env MCHAT_LOG_LEVEL)")
	flags.StringVar(&flagLogFile, "log-file", "", "write logs to this file (env MCHAT_LOG_FILE)")
	flags.IntVar(&flagTimeout, "timeout", 0, "HTTP timeout in seconds (env MCHAT_TIMEOUT)")
	flags.IntVar(&flagPageSize, "page-size", 0, "messages per history page (env MCHAT_PAGE_SIZE)")

	rootCmd.AddCommand(tuiCmd)
}

// runtimeEnv holds what every command shares: configuration, the local
// database and a REST client for the configured server.
type runtimeEnv struct {
	cfg    *config.Config
	store  *db.DB
	client *api.Client
	logs   io.Closer
}

var env runtimeEnv

func (e *runtimeEnv) open(cmd *cobra.Command) error {
	cfg := config.Load()
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFile != "" {
		cfg.LogFile = flagLogFile
	}
	if flagTimeout > 0 {
		cfg.Timeout = flagTimeout
	}
	if flagPageSize > 0 {
		cfg.PageSize = flagPageSize
	}
	e.cfg = cfg

	// the terminal belongs to tcell while the TUI runs
	if isTUI(cmd) && cfg.LogFile == "" {
		logging.Discard()
	} else {
		closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		e.logs = closer
	}

	store, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	e.store = store
	if n, err := store.PruneAvatars(avatarRetention); err != nil {
		log.Warn().Err(err).Msg("[chat] prune avatar cache")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("[chat] pruned avatar cache")
	}

	client, err := api.NewClient(cfg.ServerURL, nil, time.Duration(cfg.Timeout)*time.Second)
	if err != nil {
		return err
	}
	e.client = client
	return nil
}

func (e *runtimeEnv) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.logs != nil {
		e.logs.Close()
	}
}

func (e *runtimeEnv) session() *chat.Session {
	return chat.New(e.client, chat.Options{
		WebSocketURL: e.cfg.WebSocketURL(),
		PageSize:     e.cfg.PageSize,
		ScrollRate:   e.cfg.ScrollRate,
		Store:        e.store,
	})
}

// restore loads the saved cookies for one-shot commands.
func (e *runtimeEnv) restore() error {
	saved, err := e.store.LoadSession(e.client.BaseURL().String())
	if errors.Is(err, db.ErrNoRows) {
		return fmt.Errorf("%w for %s, run `mchat login` first", chat.ErrNoSession, e.cfg.ServerURL)
	}
	if err != nil {
		return err
	}
	e.client.SetCookies(saved.Cookies)
	return nil
}

func isTUI(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd == tuiCmd
}

func runTUI(cmd *cobra.Command, args []string) error {
	session := env.session()
	defer session.Close()
	log.Info().Str("server", env.cfg.ServerURL).Msg("[ui] starting")
	return ui.NewApp(session, env.cfg.ServerURL).Run()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	err := rootCmd.Execute()
	env.close()
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
