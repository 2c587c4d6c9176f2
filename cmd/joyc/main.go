package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/srg/joyc/pkg/config"
)

// Populated by the linker at release time.
var (
	version = "dev"
	date    = "unknown"
	commit  = "none"
)

// formatVersion prefixes release numbers with 'v'; opaque strings like "dev"
// pass through untouched.
func formatVersion(ver string) string {
	if ver == "" || !unicode.IsDigit(rune(ver[0])) {
		return ver
	}
	return "v" + ver
}

// rootCmd is the bare joyc invocation; subcommands attach in init
var rootCmd = &cobra.Command{
	Use:   "joyc",
	Short: "Joy-Con 2 telemetry client",
	Long: `Command-line client for Nintendo Switch 2 Joy-Con controllers over BLE:

- Scan for nearby controllers and tell left from right
- Stream decoded input reports: buttons, sticks, pointer, motion, battery
- Publish telemetry as NDJSON, to an MQTT broker, or onto a local PTY
- Decode captured notification payloads offline

The controller only needs to be in pairing mode; no OS-level pairing is
required.`,
	Version: formatVersion(version),
}

func main() {
	err := rootCmd.Execute()
	if err == nil || errors.Is(err, context.Canceled) {
		// Ctrl+C is a normal exit, not an error
		return
	}
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
	os.Exit(1)
}

// loadConfig reads the config file named by --config, or the default path
// when the flag is unset. Flags still override whatever the file says.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func init() {
	// main() prints the clean form of errors, so Cobra stays quiet
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd, streamCmd, decodeCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: joyc/config.yaml under the OS config dir)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.SetVersionTemplate(fmt.Sprintf("joyc %s (commit: %s, built: %s)\n", formatVersion(version), commit, date))
}
