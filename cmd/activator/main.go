package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/slok/activator/cmd/activator/commands"
	"github.com/slok/activator/internal/log"
	loglogrus "github.com/slok/activator/internal/log/logrus"
	"github.com/slok/activator/internal/metrics"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("activator", "Resource activation and lifecycle orchestration tool.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	createCmd := commands.NewCreateCommand(rootCmd, app)
	listCmd := commands.NewListCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)
	activateCmd := commands.NewActivateCommand(rootCmd, app)
	firstStartCmd := commands.NewFirstStartCommand(rootCmd, app)
	startCmd := commands.NewStartCommand(rootCmd, app)
	stopCmd := commands.NewStopCommand(rootCmd, app)
	removeCmd := commands.NewRemoveCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		createCmd.Name():     createCmd,
		listCmd.Name():       listCmd,
		statusCmd.Name():     statusCmd,
		activateCmd.Name():   activateCmd,
		firstStartCmd.Name(): firstStartCmd,
		startCmd.Name():      startCmd,
		stopCmd.Name():       stopCmd,
		removeCmd.Name():     removeCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr
	rootCmd.Version = Version

	// Printer commands don't log unless debugging, logs would mix with the output.
	printerCommands := map[string]bool{
		"list":   true,
		"status": true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	// Set metrics.
	promReg := prometheus.NewRegistry()
	rootCmd.Metrics = metrics.Noop
	if rootCmd.MetricsListenAddress != "" {
		rec, err := metrics.NewPrometheus(metrics.PrometheusConfig{Registerer: promReg})
		if err != nil {
			return fmt.Errorf("could not create metrics recorder: %w", err)
		}
		rootCmd.Metrics = rec
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Metrics server.
	if rootCmd.MetricsListenAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              rootCmd.MetricsListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Add(
			func() error {
				ln, err := net.Listen("tcp", server.Addr)
				if err != nil {
					return fmt.Errorf("could not listen on metrics address: %w", err)
				}
				rootCmd.Logger.WithValues(log.Kv{"addr": ln.Addr().String()}).Infof("Serving metrics")
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	// If logger not disabled use logrus logger.
	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // By default logger goes to stderr (so it can split stdout prints).
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
