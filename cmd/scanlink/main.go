package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

// version is set via ldflags at release build time.
var version = "dev"

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scanlink",
	Short: "BLE barcode scanner connectivity tool",
	Long: `Connects Bluetooth Low Energy barcode scanners and streams their scans:

- Discover nearby scanners, known models first
- Pair with a scanner and remember it across runs
- Listen for barcodes with automatic reconnection on signal loss
- Remove the saved scanner pairing

Built for warehouse floors and checkout counters where the scanner must
just work after a single pairing.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	// Add subcommands
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(removeCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
