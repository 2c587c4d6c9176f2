package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/joyc/discovery"
	"github.com/srg/joyc/internal/groutine"
	"github.com/srg/joyc/internal/mqtt"
	"github.com/srg/joyc/internal/ptyio"
	"github.com/srg/joyc/joycon"
	"github.com/srg/joyc/pkg/config"
	"github.com/srg/joyc/session"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream decoded input reports from a controller",
	Long: fmt.Sprintf(`Connects to a Joy-Con 2 controller and streams decoded input reports.

Without --address the nearest advertising controller is discovered first;
put the controller in pairing mode (hold the small button next to the rail)
before running. Each report renders as a readable block by default.

Output sinks can be combined:
  --json         NDJSON on stdout, one enriched report per line
  --mqtt-broker  publish each report as JSON to an MQTT topic
  --pty          expose the NDJSON stream on a pseudo-terminal

Examples:
  # Discover a controller and stream
  joyc stream

  # Stream from a known address as NDJSON
  joyc stream -a %s --json

  # Publish every report to MQTT
  joyc stream --mqtt-broker tcp://localhost:1883 --mqtt-topic joycon/reports

  # Mirror the stream onto a PTY with a stable symlink
  joyc stream --pty --pty-link /tmp/joycon.tty

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.NoArgs,
	RunE: runStream,
}

var (
	streamAddress    string
	streamTimeout    time.Duration
	streamJSON       bool
	streamMQTTBroker string
	streamMQTTTopic  string
	streamPTY        bool
	streamPTYLink    string
)

func init() {
	streamCmd.Flags().StringVarP(&streamAddress, "address", "a", "", "Controller address (skips discovery)")
	streamCmd.Flags().DurationVarP(&streamTimeout, "timeout", "t", 30*time.Second, "Connection timeout")
	streamCmd.Flags().BoolVar(&streamJSON, "json", false, "Print NDJSON, one enriched report per line")
	streamCmd.Flags().StringVar(&streamMQTTBroker, "mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	streamCmd.Flags().StringVar(&streamMQTTTopic, "mqtt-topic", "joycon/reports", "MQTT topic for published reports")
	streamCmd.Flags().BoolVar(&streamPTY, "pty", false, "Expose the NDJSON stream on a pseudo-terminal")
	streamCmd.Flags().StringVar(&streamPTYLink, "pty-link", "", "Symlink to create for the PTY device (requires --pty)")
}

func runStream(cmd *cobra.Command, args []string) error {
	if streamPTYLink != "" && !streamPTY {
		return fmt.Errorf("--pty-link requires --pty")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Configure logger based on --log-level and the config file
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// Arguments are valid, so runtime failures should not print usage
	cmd.SilenceUsage = true

	connectTimeout := cfg.ConnectTimeout
	if cmd.Flags().Changed("timeout") {
		connectTimeout = streamTimeout
	}

	// The context ends on Ctrl+C or SIGTERM so every stage can unwind
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec, err := resolveController(ctx, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Connecting: %s (%s) - %s\n", rec.Name, rec.Address, rec.Side)

	sinks, cleanup, err := buildSinks(ctx, cfg, connectTimeout, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Decoded updates flow through the collector ring so a slow sink sees
	// the newest controller state instead of a growing backlog
	updates := make(chan session.Update, 64)
	collector, err := session.NewCollector(updates, 512, func(err error) {
		logger.WithError(err).Error("collector failure")
	})
	if err != nil {
		return err
	}
	if err := collector.Start(); err != nil {
		return err
	}
	defer func() { _ = collector.Stop() }()

	emit := func(u *session.Update) (int, error) {
		if u == nil {
			return 0, nil
		}
		for _, sink := range sinks {
			sink(u)
		}
		return 0, nil
	}

	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	drainDone := make(chan struct{})
	groutine.Go(drainCtx, "stream-drain", func(dctx context.Context) {
		defer close(drainDone)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-dctx.Done():
				// Final drain so nothing buffered is lost on shutdown
				_, _ = session.ConsumeUpdates(collector, emit)
				return
			case <-ticker.C:
				if _, err := session.ConsumeUpdates(collector, emit); err != nil {
					logger.WithError(err).Error("failed to drain updates")
				}
			}
		}
	})

	sess, err := session.New(&session.Options{
		Address:        rec.Address,
		ConnectTimeout: connectTimeout,
	}, logger)
	if err != nil {
		return err
	}

	progress := NewProgressPrinter("Starting session", session.StateConnecting.String(),
		session.StateStreaming.String(), "Failed")
	progress.Start()
	defer progress.Stop()

	phaseCb := progress.Callback()
	progressCb := func(phase string) {
		phaseCb(phase)
		if phase == session.StateStreaming.String() {
			fmt.Fprintf(os.Stderr, "Data reception started. Device: %s (%s)\n", rec.Name, rec.Side)
			fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit.")
		}
	}

	handler := func(u *session.Update) {
		select {
		case updates <- *u:
		default:
			// The collector ring handles sustained pressure; a full handoff
			// channel means it stalled outright
			logger.Debug("update handoff full, dropping report")
		}
	}

	runErr := sess.Run(ctx, progressCb, handler)

	// Stop feeding the ring, then flush what is still buffered
	_ = collector.Stop()
	stopDrain()
	<-drainDone

	stats := sess.Stats()
	fmt.Fprintf(os.Stderr, "\nSession closed: %d reports decoded, %d decode errors\n",
		stats.ReportsDecoded, stats.DecodeErrors)

	return runErr
}

// resolveController returns the connection record for the controller to
// stream from, either directly from --address or by running discovery.
func resolveController(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*discovery.Record, error) {
	if streamAddress != "" {
		// Direct connect; the side stays unknown without an advertisement
		return &discovery.Record{
			Address: streamAddress,
			Name:    "Joy-Con 2",
			Side:    joycon.SideUnknown,
		}, nil
	}

	s, err := discovery.NewScanner(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := discovery.DefaultScanOptions()
	opts.Duration = cfg.ScanTimeout
	opts.FallbackDuration = cfg.FallbackTimeout

	progress := NewProgressPrinter("Searching for controller", "Scanning")
	progress.Start()
	defer progress.Stop()

	rec, err := s.Find(ctx, opts, progress.Callback())
	if err != nil {
		return nil, err
	}
	progress.Stop()

	if rec.Name == "" {
		rec.Name = "Joy-Con 2"
	}
	return rec, nil
}

type updateSink func(*session.Update)

// buildSinks assembles the output fan-out from the stream flags. The cleanup
// function releases every sink that was created, in reverse order.
func buildSinks(ctx context.Context, cfg *config.Config, connectTimeout time.Duration, logger *logrus.Logger) ([]updateSink, func(), error) {
	var sinks []updateSink
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if streamJSON || cfg.OutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		sinks = append(sinks, func(u *session.Update) {
			if err := enc.Encode(u); err != nil {
				logger.WithError(err).Error("failed to encode update")
			}
		})
	} else {
		sinks = append(sinks, func(u *session.Update) {
			fmt.Print(joycon.FormatReport(u.Report, u.Delta))
		})
	}

	if streamMQTTBroker != "" {
		pub, err := mqtt.NewPublisher(&mqtt.Options{
			BrokerURL: streamMQTTBroker,
			Topic:     streamMQTTTopic,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		connectCtx, cancelConnect := context.WithTimeout(ctx, connectTimeout)
		err = pub.Connect(connectCtx)
		cancelConnect()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", streamMQTTBroker, err)
		}
		cleanups = append(cleanups, pub.Disconnect)
		sinks = append(sinks, func(u *session.Update) {
			if err := pub.Publish(u); err != nil {
				logger.WithError(err).Debug("MQTT publish failed")
			}
		})
	}

	if streamPTY {
		sink, err := ptyio.NewSink(&ptyio.SinkOptions{LinkPath: streamPTYLink}, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = sink.Close() })

		name := sink.TTYName()
		if link := sink.LinkPath(); link != "" {
			name = fmt.Sprintf("%s -> %s", link, name)
		}
		fmt.Fprintf(os.Stderr, "PTY device: %s\n", name)

		sinks = append(sinks, func(u *session.Update) {
			if err := sink.WriteUpdate(u); err != nil {
				logger.WithError(err).Debug("PTY write failed")
			}
		})
	}

	return sinks, cleanup, nil
}
