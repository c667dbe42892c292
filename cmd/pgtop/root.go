package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/powa-team/pgtop/internal/config"
	"github.com/powa-team/pgtop/internal/engine"
	pgerrors "github.com/powa-team/pgtop/internal/errors"
	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/monitor"
	"github.com/powa-team/pgtop/internal/notifier"
	"github.com/powa-team/pgtop/internal/reader"
	"github.com/powa-team/pgtop/internal/scheduler"
	"github.com/powa-team/pgtop/internal/screen"
	"github.com/powa-team/pgtop/internal/server"
)

// options holds the command line flags.
type options struct {
	configPath string
	user       string
	host       string
	port       int
	password   string
	noReplicas bool
	cycles     int64
	debug      bool
}

func newRootCmd() *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:   "pgtop [flags] [dbname]",
		Short: "Live top of PostgreSQL sessions on a primary and its replicas",
		Long: `pgtop polls the session status view of a PostgreSQL primary and of every
replica streaming from it, and redraws a table of the busiest backends on
each poll.

Examples:
  pgtop
  pgtop -h db1.internal -U monitor orders
  pgtop --config /etc/pgtop.yaml --no-replicas`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &o, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, o.cycles)
		},
	}

	f := cmd.Flags()
	// -h is the host, as in psql
	f.Bool("help", false, "help for pgtop")
	f.StringVar(&o.configPath, "config", "", "path to the configuration file")
	f.StringVarP(&o.user, "user", "U", "", "database user name")
	f.StringVarP(&o.host, "host", "h", "", "primary host name, address or socket directory")
	f.IntVarP(&o.port, "port", "p", 0, "database server port")
	f.StringVarP(&o.password, "password", "W", "", "database password")
	f.BoolVar(&o.noReplicas, "no-replicas", false, "monitor the primary only")
	f.Int64Var(&o.cycles, "cycles", 0, "stop after this many refreshes (0 runs until interrupted)")
	f.BoolVar(&o.debug, "debug", false, "write debug messages to the log file")

	return cmd
}

// loadConfig reads the configuration file, if any, and applies the flags
// the user set on top of it.
func loadConfig(cmd *cobra.Command, o *options, args []string) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "loading configuration", "")
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Database.User = o.user
	}
	if flags.Changed("host") {
		cfg.Database.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Database.Port = o.port
	}
	if flags.Changed("password") {
		cfg.Database.Password = o.password
	}
	if len(args) == 1 {
		cfg.Database.DBName = args[0]
	}
	if o.noReplicas {
		cfg.Discovery.Replicas = false
	}
	if o.debug {
		cfg.Log.Debug = true
	}

	if o.cycles < 0 {
		return nil, pgerrors.New(pgerrors.ErrConfig, "--cycles must not be negative", "")
	}
	if err := cfg.Validate(); err != nil {
		return nil, pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "checking configuration", "")
	}
	return cfg, nil
}

// terminal returns the size and color profile of stdout, read once.
func terminal() (width, height int, profile termenv.Profile, err error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, termenv.Ascii, pgerrors.New(pgerrors.ErrTerminal, "not running on a terminal", "")
	}
	width, height, err = term.GetSize(fd)
	if err != nil {
		return 0, 0, termenv.Ascii, pgerrors.WrapWithCode(err, pgerrors.ErrTerminal, "reading the terminal size", "")
	}
	return width, height, termenv.EnvColorProfile(), nil
}

// intervals parses the poll and reconnect intervals; both must be positive.
func intervals(m *config.MonitorConfig) (poll, reconnect time.Duration, err error) {
	poll, err = m.PollIntervalParsed()
	if err == nil && poll <= 0 {
		err = fmt.Errorf("must be positive, got %s", m.PollInterval)
	}
	if err != nil {
		return 0, 0, pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "invalid monitor.poll_interval", "")
	}

	reconnect, err = m.ReconnectIntervalParsed()
	if err == nil && reconnect <= 0 {
		err = fmt.Errorf("must be positive, got %s", m.ReconnectInterval)
	}
	if err != nil {
		return 0, 0, pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "invalid monitor.reconnect_interval", "")
	}
	return poll, reconnect, nil
}

func run(ctx context.Context, cfg *config.Config, cycles int64) error {
	width, height, profile, err := terminal()
	if err != nil {
		return err
	}

	log, logCloser, err := logger.Open(cfg.Log.File, cfg.Log.Debug)
	if err != nil {
		return pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "opening the log file", "")
	}
	defer logCloser.Close()

	rules, err := engine.RulesFromConfig(&cfg.Monitor)
	if err != nil {
		return pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "invalid configuration", "")
	}
	poll, reconnect, err := intervals(&cfg.Monitor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("pgtop %s starting, primary %s:%d", version, cfg.Database.Host, cfg.Database.Port)

	readerLog := logger.WithPrefix(log, "[reader]")
	sup := monitor.New(monitor.Options{
		Connect: func(ctx context.Context) (monitor.Registry, error) {
			reg, err := reader.Discover(ctx, cfg, reader.Options{Logger: readerLog})
			if err != nil {
				return nil, err
			}
			return reg, nil
		},
		Engine: engine.New(rules),
		Renderer: screen.New(screen.Options{
			Width:       width,
			Height:      height,
			MaxSQLLines: cfg.Monitor.MaxSQLLines,
			Profile:     profile,
		}),
		Output:            os.Stdout,
		Logger:            logger.WithPrefix(log, "[monitor]"),
		PollInterval:      poll,
		ReconnectInterval: reconnect,
		ClockTicks:        cfg.Monitor.ClockTicksPerSecond,
		MaxCycles:         cycles,
	})

	notify, err := notifier.New(&cfg.Notifier, logger.WithPrefix(log, "[report]"))
	if err != nil {
		return pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "invalid configuration", "")
	}
	sched := scheduler.New(scheduler.Options{
		Status:      sup,
		Notifier:    notify,
		Logger:      logger.WithPrefix(log, "[report]"),
		WarnPercent: cfg.Report.ConnectionWarnPercent,
		TopN:        cfg.Report.TopN,
		Location:    time.Local,
	})
	if err := sched.Schedule(cfg.Report.Cron); err != nil {
		return pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "invalid report cron", "")
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Server.Port > 0 {
		srv := server.New(server.Options{
			Addr:       fmt.Sprintf(":%d", cfg.Server.Port),
			StaleAfter: 3*poll + reconnect,
			Logger:     logger.WithPrefix(log, "[server]"),
		}, sup)
		if err := srv.Start(); err != nil {
			return pgerrors.WrapWithCode(err, pgerrors.ErrConfig, "starting the status server", "")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn("stopping the status server: %v", err)
			}
		}()
	}

	err = sup.Run(ctx)
	termenv.NewOutput(os.Stdout, termenv.WithProfile(profile)).Reset()
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted, shutting down")
		return nil
	}
	return err
}
