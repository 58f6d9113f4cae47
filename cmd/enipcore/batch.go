package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/artifact"
	"github.com/tturner/enipcore/internal/cip/spec"
	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/errors"
	"github.com/tturner/enipcore/internal/logging"
	"github.com/tturner/enipcore/internal/metrics"
	"github.com/tturner/enipcore/internal/progress"
	"github.com/tturner/enipcore/internal/transport"
)

type batchFlags struct {
	configPath string
	dryRun     bool
	quiet      bool
	logLevel   string
	logFile    string
	logFormat  string
	logEvery   int
}

func newBatchCmd() *cobra.Command {
	flags := &batchFlags{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the requests in a YAML request file over one session",
		Long: `Register one session with the target named in the request file, send
every request in order (repeating where asked), and print a summary of
round-trip times and outcomes. Metrics and a pcap of the session can be
written alongside, and copied to the SSH jump host when one is used.

Run "enipcore init" to write an example request file.`,
		Example: `  enipcore batch --config requests.yaml
  enipcore batch --config requests.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.configPath == "" {
				return missingFlagError(cmd, "--config")
			}
			return runBatch(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Request file (required)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate the file and print the encoded frames without connecting")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Show a progress bar instead of each reply")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level (silent, error, info, verbose, debug)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Also write every log line to this file")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "Log format (text or json)")
	cmd.Flags().IntVar(&flags.logEvery, "log-every", 1, "Print only every Nth console log line at verbose level")
	return cmd
}

func runBatch(cmd *cobra.Command, flags *batchFlags) error {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	route, err := cfg.Route.Bytes()
	if err != nil {
		return errors.WrapConfigError(err, flags.configPath)
	}
	out := cmd.OutOrStdout()

	if flags.dryRun {
		return printBatchPlan(out, cfg, route)
	}

	level, err := logging.ParseLevel(flags.logLevel)
	if err != nil {
		return err
	}
	logger, err := logging.NewLoggerWithOptions(level, flags.logFile, flags.logFormat, flags.logEvery)
	if err != nil {
		return err
	}
	defer logger.Close()

	sink := metrics.NewSink()
	recorders := metrics.Tee{sink}
	var writer *metrics.Writer
	if cfg.Output.MetricsCSV != "" || cfg.Output.MetricsJSON != "" {
		writer, err = metrics.NewWriter(cfg.Output.MetricsCSV, cfg.Output.MetricsJSON)
		if err != nil {
			return err
		}
		recorders = append(recorders, writer)
	}

	var run *artifact.Run
	if cfg.Output.RunDir != "" {
		run, err = artifact.NewRun(cfg.Output.RunDir)
		if err != nil {
			closeWriter(writer, logger)
			return err
		}
		run.SetConfig(flags.configPath, cfg.Target.IP, cfg.Target.Port, cfg.Target.Via, route, totalExchanges(cfg.Requests))
		run.SetArtifacts(artifact.ArtifactPaths{
			MetricsCSV:  cfg.Output.MetricsCSV,
			MetricsJSON: cfg.Output.MetricsJSON,
			PCAP:        cfg.Output.PCAP,
		})
	}

	ctx := commandContext(cmd)
	live, err := openSession(ctx, sessionSetup{
		Target:   cfg.Target,
		Route:    route,
		Logger:   logger,
		Recorder: recorders,
		PCAP:     cfg.Output.PCAP,
	})
	if err != nil {
		closeWriter(writer, logger)
		return err
	}

	var bar *progress.Bar
	if flags.quiet {
		bar = progress.New(cmd.ErrOrStderr(), totalExchanges(cfg.Requests), "batch")
	}
	runErr := runRequests(ctx, out, live, cfg.Requests, bar)
	if bar != nil {
		bar.Finish()
	}
	if err := live.Close(ctx); err != nil {
		logger.Verbose("close session: %v", err)
	}
	closeWriter(writer, logger)

	summary := sink.GetSummary()
	fmt.Fprintln(out, boxStyle.Render(metrics.FormatSummary(summary)))

	uploads := []string{cfg.Output.MetricsCSV, cfg.Output.MetricsJSON, cfg.Output.PCAP}
	if run != nil {
		if err := run.Finalize(summary, runErr); err != nil {
			logger.Error("write run record: %v", err)
		} else {
			fmt.Fprintf(out, "run record written to %s\n", run.Dir())
			uploads = append(uploads, run.Paths()...)
		}
	}

	if runErr == nil && cfg.Output.UploadDir != "" {
		runErr = uploadArtifacts(ctx, out, cfg, uploads)
	}
	return runErr
}

func totalExchanges(requests []config.Request) int {
	total := 0
	for _, req := range requests {
		total += req.Repeat
	}
	return total
}

// runRequests stops at the first transport failure; CIP error replies are
// reported and the batch continues. With a progress bar, replies are not printed.
func runRequests(ctx context.Context, out io.Writer, live *liveSession, requests []config.Request, bar *progress.Bar) error {
	for _, req := range requests {
		data, err := req.Data()
		if err != nil {
			return err
		}
		for i := 0; i < req.Repeat; i++ {
			name := req.Name
			if req.Repeat > 1 {
				name = fmt.Sprintf("%s #%d", req.Name, i+1)
			}
			resp, rtt, err := live.send(ctx, req.Code(), req.Path(), data)
			if err != nil {
				return errors.WrapCIPError(err, name)
			}
			if bar != nil {
				bar.Done(resp.OK())
				continue
			}
			fmt.Fprintln(out, renderReply(name, resp, rtt))
		}
	}
	return nil
}

func closeWriter(w *metrics.Writer, logger *logging.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("close metrics writer: %v", err)
	}
}

func printBatchPlan(out io.Writer, cfg *config.Config, route []byte) error {
	fmt.Fprintf(out, "%s %s via %s\n", titleStyle.Render("target"),
		transport.TargetAddr(cfg.Target.IP, cfg.Target.Port), viaName(cfg.Target.Via))
	if len(route) > 0 {
		fmt.Fprintf(out, "%s %s\n", titleStyle.Render("route"), hexBytes(route))
	}
	for _, req := range cfg.Requests {
		data, err := req.Data()
		if err != nil {
			return err
		}
		frame, err := encodeRequestFrame(sendRequest{service: req.Code(), path: req.Path(), data: data}, route)
		if err != nil {
			return fmt.Errorf("%s: %w", req.Name, err)
		}
		fmt.Fprintf(out, "%s x%d  %s %s\n  %s\n", req.Name, req.Repeat, spec.ServiceName(req.Code()), req.Path(), dimStyle.Render(hexBytes(frame)))
	}
	return nil
}

func viaName(via string) string {
	if transport.IsDirect(via) {
		return "direct"
	}
	return via
}

// uploadArtifacts copies the run's output files to the jump host.
func uploadArtifacts(ctx context.Context, out io.Writer, cfg *config.Config, files []string) error {
	dialer, err := transport.Parse(cfg.Target.Via)
	if err != nil {
		return err
	}
	defer dialer.Close()
	uploader, ok := dialer.(transport.Uploader)
	if !ok {
		return fmt.Errorf("%s cannot receive uploads", dialer)
	}
	for _, local := range files {
		if local == "" {
			continue
		}
		base := filepath.Base(local)
		if err := transport.ValidateRelativePath(cfg.Output.UploadDir, base); err != nil {
			return fmt.Errorf("upload %s: %w", local, err)
		}
		remote := path.Join(cfg.Output.UploadDir, base)
		if err := uploader.Put(ctx, local, remote); err != nil {
			return fmt.Errorf("upload %s: %w", local, err)
		}
		fmt.Fprintf(out, "uploaded %s to %s:%s\n", local, dialer, remote)
	}
	return nil
}
