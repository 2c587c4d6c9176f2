package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/joyc/joycon"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex-report> [hex-report...]",
	Short: "Decode captured input reports offline",
	Long: `Decodes raw Joy-Con 2 notification payloads without a controller.

Each argument is one captured notification payload as hex; spaces, colons,
dashes, and 0x prefixes are tolerated. Reports render exactly like the live
stream, and pointer deltas are tracked across consecutive arguments.

Examples:
  # Decode one captured notification
  joyc decode 34120000000800...

  # Decode consecutive captures as NDJSON
  joyc decode "0x34 0x12 0x00 ..." "0x35 0x12 0x00 ..." --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

var decodeJSON bool

func init() {
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print NDJSON, one report per line")
}

// hexSeparators strips the spacing and prefixes people paste along with hex dumps.
var hexSeparators = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "")

// parseReportHex converts a hex argument to bytes, tolerating common separators
func parseReportHex(arg string) ([]byte, error) {
	data, err := hex.DecodeString(hexSeparators.Replace(arg))
	if err != nil {
		return nil, fmt.Errorf("invalid hex data in %q: %w", arg, err)
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	// Parse every argument up front so a bad one fails the whole invocation
	payloads := make([][]byte, 0, len(args))
	for i, arg := range args {
		data, err := parseReportHex(arg)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		payloads = append(payloads, data)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Configure logger based on --log-level and the config file
	if _, err := configureLogger(cmd, cfg); err != nil {
		return err
	}

	// Arguments are valid, so runtime failures should not print usage
	cmd.SilenceUsage = true

	jsonOut := decodeJSON || cfg.OutputFormat == "json"
	encoder := json.NewEncoder(os.Stdout)

	// One tracker across arguments, so consecutive captures produce the same
	// deltas the live stream would have shown
	var tracker joycon.PointerTracker

	for i, data := range payloads {
		report, err := joycon.DecodeInputReport(data)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}

		delta := tracker.Update(report)

		if jsonOut {
			if err := encoder.Encode(decodedReport{Report: report, Delta: delta}); err != nil {
				return err
			}
		} else {
			fmt.Print(joycon.FormatReport(report, delta))
		}
	}

	return nil
}

// decodedReport mirrors the enriched shape the live stream emits, minus the
// sequence and receive-time fields that only exist for a real session.
type decodedReport struct {
	Report *joycon.InputReport `json:"report"`
	Delta  joycon.PointerDelta `json:"pointer_delta"`
}
