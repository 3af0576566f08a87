package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/cattlechat/account"
	"github.com/Zereker/cattlechat/config"
	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/protocol"
	"github.com/Zereker/cattlechat/reactor"
	"github.com/Zereker/cattlechat/room"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/transport"
)

var serveFlags struct {
	config      string
	listen      string
	backend     string
	accounts    string
	logLevel    string
	keepalive   int
	idleTimeout int
	maxConns    int
	noColor     bool
}

// serveCmd runs the chat server until it is signaled to stop.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the chat server. Settings come from the defaults, then the JSON file
given with --config, then the flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.config, "config", "", "Configuration file (JSON)")
	f.StringVar(&serveFlags.listen, "listen", "", "Address to listen on, host:port")
	f.StringVar(&serveFlags.backend, "accounts-backend", "", "Account directory: file, sqlite or memory")
	f.StringVar(&serveFlags.accounts, "accounts", "", "Account file or database path")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.IntVar(&serveFlags.keepalive, "keepalive", 0, "Seconds between keepalive packets")
	f.IntVar(&serveFlags.idleTimeout, "idle-timeout", 0, "Drop sessions silent for this many seconds (0 never)")
	f.IntVar(&serveFlags.maxConns, "max-connections", 0, "Maximum concurrent sessions (0 unlimited)")
	f.BoolVar(&serveFlags.noColor, "no-color", false, "Print chat without colors")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if serveFlags.config != "" {
		loaded, err := config.Load(serveFlags.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if f.Changed("accounts-backend") {
		cfg.AccountsBackend = serveFlags.backend
	}
	if f.Changed("accounts") {
		cfg.AccountsPath = serveFlags.accounts
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
	if f.Changed("keepalive") {
		cfg.KeepaliveSeconds = serveFlags.keepalive
	}
	if f.Changed("idle-timeout") {
		cfg.IdleTimeoutSeconds = serveFlags.idleTimeout
	}
	if f.Changed("max-connections") {
		cfg.MaxConnections = serveFlags.maxConns
	}
	if serveFlags.noColor {
		cfg.Color = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	sink := notify.NewConsole(logger, os.Stdout, notify.ColorOption(cfg.Color))

	accounts, closeAccounts, err := openDirectory(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeAccounts(); err != nil {
			logger.Warn("closing account directory", "error", err)
		}
	}()

	handler := protocol.New(accounts, session.NewTable(),
		room.NewRegistry(room.LoggerOption(logger)),
		protocol.LoggerOption(logger),
		protocol.SinkOption(sink))

	r := reactor.New(handler,
		reactor.LoggerOption(logger),
		reactor.SinkOption(sink),
		reactor.KeepaliveOption(cfg.Keepalive()),
		reactor.IdleTimeoutOption(cfg.IdleTimeout()),
		reactor.MaxConnectionsOption(cfg.MaxConnections),
		reactor.ConnOptions(
			transport.QueueLimitOption(cfg.SendQueueBytes),
			transport.ReadSizeOption(cfg.ReadSize),
			transport.WriteTimeoutOption(cfg.WriteTimeout()),
		))

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	srv, err := transport.Listen(ctx, cfg.Listen, transport.ServerLoggerOption(logger))
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Serve(gctx, r)
	})
	group.Go(func() error {
		return r.Run(gctx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	return err
}

func openDirectory(cfg *config.Config, logger logging.Logger) (account.Directory, func() error, error) {
	switch cfg.AccountsBackend {
	case config.BackendMemory:
		logger.Warn("accounts are kept in memory and lost on exit")
		return account.NewMemory(), func() error { return nil }, nil
	case config.BackendFile:
		f, err := account.OpenFile(cfg.AccountsPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.BackendSQLite:
		db, err := account.OpenSQLite(cfg.AccountsPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, errors.Errorf("unknown accounts backend %q", cfg.AccountsBackend)
}
