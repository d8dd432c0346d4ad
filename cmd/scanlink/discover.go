package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scanlink/scanlink/discovery"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover nearby BLE barcode scanners",
	Long: `Scan for nearby BLE devices and rank likely barcode scanners.

Known scanner models are listed first, followed by heuristic candidates
sorted by confidence. Use --advanced to also list devices that don't look
like scanners at all.`,
	RunE: runDiscover,
}

var (
	discoverTimeout  time.Duration
	discoverAdvanced bool
)

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 10*time.Second, "Discovery duration")
	discoverCmd.Flags().BoolVar(&discoverAdvanced, "advanced", false, "Show all devices, not just scanner candidates")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	mgr, err := newManager(logger)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling discovery...")
		cancel()
	}()

	fmt.Printf("Discovering scanners for %s...\n", discoverTimeout)

	devices, err := mgr.Discover(ctx, &discovery.Options{
		Timeout:  discoverTimeout,
		Advanced: discoverAdvanced,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return displayDevices(os.Stdout, devices)
}

func displayDevices(out io.Writer, devices []*discovery.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No scanners discovered. Make sure the scanner is powered on and in pairing mode.")
		return nil
	}

	known := color.New(color.FgGreen, color.Bold)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tNAME\tRSSI\tTYPE\tSCORE")
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, d := range devices {
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}

		kind := "candidate"
		if d.IsKnownScanner {
			kind = known.Sprintf("%s %s", d.Manufacturer, d.Model)
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%d\n",
			d.DeviceID, name, d.RSSI, kind, d.HeuristicScore)
	}

	return w.Flush()
}
