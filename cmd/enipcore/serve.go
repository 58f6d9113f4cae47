package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/logging"
	"github.com/tturner/enipcore/internal/server"
	"github.com/tturner/enipcore/internal/tui"
)

type serveFlags struct {
	listen     string
	slot       int
	configPath string
	logLevel   string
	logFile    string
	logFormat  string
	tui        bool
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated EtherNet/IP target",
		Long: `Run a small EtherNet/IP target that registers sessions and answers
explicit messages for the Identity object. Requests routed through an
Unconnected Send are answered when the route names this target's slot.

Stop with Ctrl+C.`,
		Example: `  enipcore serve
  enipcore serve --listen 127.0.0.1:44818 --slot 2
  enipcore serve --config target.yaml --log-level verbose
  enipcore serve --tui --log-file target.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			cfg, err := flags.serverConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, flags, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "Listen address (default :44818)")
	cmd.Flags().IntVar(&flags.slot, "slot", -1, "Backplane slot routed requests must name")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Server configuration file")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level (silent, error, info, verbose, debug)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Also write every log line to this file")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "Log format (text or json)")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "Show a live dashboard instead of log output")
	return cmd
}

// serverConfig layers flags over the config file over the defaults.
func (f *serveFlags) serverConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	cfg := config.CreateDefaultServerConfig()
	if f.configPath != "" {
		loaded, err := config.LoadServerConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = f.listen
	}
	if cmd.Flags().Changed("slot") {
		if f.slot < 0 || f.slot > 0xFF {
			return nil, fmt.Errorf("--slot must be 0-255")
		}
		cfg.Slot = uint8(f.slot)
	}
	return cfg, config.ValidateServerConfig(cfg)
}

func toServerConfig(cfg *config.ServerConfig) server.Config {
	return server.Config{
		ListenAddr:  cfg.Listen,
		Slot:        cfg.Slot,
		IdleTimeout: time.Duration(cfg.IdleTimeoutMs) * time.Millisecond,
		Identity: server.Identity{
			VendorID:    cfg.VendorID,
			DeviceType:  cfg.DeviceType,
			ProductCode: cfg.ProductCode,
			RevMajor:    cfg.RevisionMajor,
			RevMinor:    cfg.RevisionMinor,
			Serial:      cfg.SerialNumber,
			ProductName: cfg.ProductName,
		},
	}
}

// serveLogger keeps the console quiet under --tui; the log file, if any,
// still receives everything.
func (f *serveFlags) serveLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	if !f.tui {
		return logging.NewLoggerWithOptions(level, f.logFile, f.logFormat, 1)
	}
	if f.logFile == "" {
		return logging.Nop(), nil
	}
	file, err := os.Create(f.logFile)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return logging.NewFileLogger(level, file), nil
}

func runServe(ctx context.Context, cmd *cobra.Command, flags *serveFlags, cfg *config.ServerConfig) error {
	logger, err := flags.serveLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	srv := server.New(toServerConfig(cfg), logger)
	if err := srv.Start(); err != nil {
		return err
	}

	if flags.tui {
		monitor := tui.NewMonitor(srv, tui.Info{Addr: srv.Addr().String(), Slot: cfg.Slot, ProductName: cfg.ProductName})
		runErr := tui.Run(ctx, monitor)
		if err := srv.Stop(); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (slot %d, %q)\n",
		titleStyle.Render("listening"), srv.Addr(), cfg.Slot, cfg.ProductName)
	<-ctx.Done()
	return srv.Stop()
}
