package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/joyc/discovery"
	"github.com/srg/joyc/internal/device"
	"github.com/srg/joyc/joycon"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Joy-Con 2 controllers",
	Long: `Scan for and display Joy-Con 2 controllers advertising nearby.

Controllers broadcast Nintendo manufacturer data while in pairing mode; the
scan classifies each one as a left or right Joy-Con from that payload. Only
controllers are listed by default; pass --all to see every BLE device found.`,
	RunE: runScan,
}

var (
	scanTimeout       time.Duration
	scanJSON          bool
	scanAll           bool
	scanServiceFilter []string
	scanAllow         []string
	scanBlock         []string
	scanDedup         bool
	scanWatch         bool
)

// scanDisplay selects how discovered devices are rendered
type scanDisplay struct {
	jsonOut bool
	showAll bool
}

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print one JSON object per device instead of a table")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every BLE device, not just controllers")
	scanCmd.Flags().StringSliceVarP(&scanServiceFilter, "services", "s", nil, "Only report devices advertising these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Restrict results to these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Drop these addresses from the results")
	scanCmd.Flags().BoolVar(&scanDedup, "no-duplicates", true, "Collapse repeat advertisements per device")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Keep scanning and redraw results in place")
}

// interruptibleContext derives a context that Ctrl+C or SIGTERM cancels. The
// returned cancel func releases the signal handler as well.
func interruptibleContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// Arguments are valid, so runtime failures should not print usage
	cmd.SilenceUsage = true

	// The flag wins over the config file; unset means the config value
	timeout := cfg.ScanTimeout
	if cmd.Flags().Changed("timeout") {
		timeout = scanTimeout
	} else if scanWatch {
		// Watch mode keeps scanning until interrupted unless a timeout was
		// asked for explicitly
		timeout = 0
	}

	display := &scanDisplay{
		jsonOut: scanJSON || cfg.OutputFormat == "json",
		showAll: scanAll,
	}

	s, err := discovery.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	var serviceUUIDs []string
	if len(scanServiceFilter) > 0 {
		serviceUUIDs, err = device.ValidateUUID(scanServiceFilter...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	scanOpts := discovery.DefaultScanOptions()
	scanOpts.Duration = timeout
	scanOpts.DuplicateFilter = scanDedup
	scanOpts.ServiceUUIDs = serviceUUIDs
	scanOpts.AllowList = scanAllow
	scanOpts.BlockList = scanBlock

	if scanWatch {
		return runWatchMode(s, scanOpts, display, logger)
	}

	return runSingleScan(s, scanOpts, display, logger)
}

func runSingleScan(s *discovery.Scanner, opts *discovery.ScanOptions, display *scanDisplay, logger *logrus.Logger) error {
	baseCtx := context.Background()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		baseCtx, cancel = context.WithTimeout(baseCtx, opts.Duration)
		defer cancel()
	}

	ctx, cancel := interruptibleContext(baseCtx)
	defer cancel()

	progress := NewCountdownProgressPrinter("Scanning for controllers", "Scanning", opts.Duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, opts, progress.Callback())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	return displayDevices(devices, display)
}

// scanOutcome carries the blocking Scan result into the watch loop.
type scanOutcome struct {
	devices map[string]discovery.DeviceEntry
	err     error
}

func runWatchMode(s *discovery.Scanner, opts *discovery.ScanOptions, display *scanDisplay, logger *logrus.Logger) error {
	ctx, cancel := interruptibleContext(context.Background())
	defer cancel()

	// Devices seen so far, keyed by address. Only this goroutine touches it.
	seen := make(map[string]discovery.DeviceEntry)

	resCh := make(chan scanOutcome, 1)
	go func() {
		devices, err := s.Scan(ctx, opts, nil) // no progress line, the table redraws instead
		resCh <- scanOutcome{devices: devices, err: err}
	}()

	fatal := func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	redraw := func() error {
		clearScreen()
		return displayDevices(seen, display)
	}

	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			if fatal(context.Cause(ctx)) {
				return context.Cause(ctx)
			}
			return redraw()

		case res := <-resCh:
			// The scan finished on its own. Fold its final view into ours and
			// keep watching events; the channel is disabled so this case
			// cannot fire again.
			if fatal(res.err) {
				return res.err
			}
			for addr, entry := range res.devices {
				seen[addr] = entry
			}
			resCh = nil

		case <-refresh.C:
			_ = redraw()

		case ev := <-s.Events():
			entry := discovery.DeviceEntry{Device: ev.DeviceInfo, LastSeen: ev.Timestamp}
			seen[ev.DeviceInfo.Address()] = entry
		}
	}
}

// scanRow is one display row, with the Nintendo classification already done
type scanRow struct {
	rec      discovery.Record
	nintendo bool
}

// buildRows converts scan entries into display rows, dropping non-controller
// devices unless the display asks for everything.
func buildRows(entries map[string]discovery.DeviceEntry, display *scanDisplay) []scanRow {
	rows := make([]scanRow, 0, len(entries))
	for _, e := range entries {
		dev := e.Device
		row := scanRow{
			rec: discovery.Record{
				Address:             dev.Address(),
				Name:                dev.Name(),
				RSSI:                dev.RSSI(),
				Side:                joycon.SideUnknown,
				ManufacturerPayload: dev.ManufacturerData(),
			},
		}

		parsed, err := device.ParseManufacturerData(device.UnknownCompanyID, dev.ManufacturerData())
		if err == nil && parsed != nil {
			if nintendo, ok := parsed.(*device.NintendoManufacturerData); ok {
				row.nintendo = true
				row.rec.Side = nintendo.Side
				row.rec.ManufacturerPayload = nintendo.Payload
			}
		}

		if !row.nintendo && !display.showAll {
			continue
		}
		rows = append(rows, row)
	}

	// Named devices first, unnamed ones at the bottom
	slices.SortFunc(rows, func(a, b scanRow) int {
		return strings.Compare(b.rec.Name, a.rec.Name)
	})

	return rows
}

func displayDevices(entries map[string]discovery.DeviceEntry, display *scanDisplay) error {
	rows := buildRows(entries, display)

	if len(rows) == 0 {
		if display.showAll {
			fmt.Println("No devices discovered")
		} else {
			fmt.Println("No controllers discovered")
		}
		return nil
	}

	if display.jsonOut {
		return displayDevicesJSON(rows)
	}
	return displayDevicesTable(rows)
}

// ellipsize shortens s to at most max characters, marking the cut.
func ellipsize(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func displayDevicesTable(rows []scanRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSIDE\tMANUFACTURER DATA")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, row := range rows {
		side := "-"
		if row.nintendo {
			side = row.rec.Side.String()
		}

		payload := "-"
		if len(row.rec.ManufacturerPayload) > 0 {
			payload = ellipsize(hex.EncodeToString(row.rec.ManufacturerPayload), 30)
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\n",
			row.rec.Address, ellipsize(row.rec.Name, 20), row.rec.RSSI, side, payload)
	}

	return w.Flush()
}

// displayDevicesJSON emits one JSON object per device, newline-delimited
func displayDevicesJSON(rows []scanRow) error {
	encoder := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := encoder.Encode(row.rec); err != nil {
			return err
		}
	}
	return nil
}

func clearScreen() {
	fmt.Print("\x1b[2J\x1b[H")
}
