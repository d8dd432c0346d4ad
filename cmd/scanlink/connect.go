package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanlink/scanlink/discovery"
	"github.com/scanlink/scanlink/internal/bleadapter"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <device-id>",
	Short: "Pair with a barcode scanner",
	Long: `Connect to a scanner found by 'scanlink discover' and remember it.

The scanner's barcode channel is resolved and the pairing is saved, so
'scanlink listen' can reconnect to it directly in future runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var connectScanTimeout time.Duration

func init() {
	connectCmd.Flags().DurationVarP(&connectScanTimeout, "timeout", "t", 10*time.Second, "How long to look for the scanner")
}

func runConnect(cmd *cobra.Command, args []string) error {
	deviceID := args[0]

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
		cancel()
	}()

	fmt.Printf("Looking for %s...\n", deviceID)

	// A fresh discovery round both confirms the scanner is in range and
	// recovers its advertised name for characteristic resolution.
	devices, err := mgr.Discover(ctx, &discovery.Options{
		Timeout:  connectScanTimeout,
		Advanced: true,
	})
	if err != nil {
		return err
	}

	var target *discovery.Device
	for _, d := range devices {
		if strings.EqualFold(d.DeviceID, deviceID) {
			target = d
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %s", bleadapter.ErrDeviceNotFound, deviceID)
	}

	fmt.Printf("Connecting to %s (%s)...\n", target.Name, target.DeviceID)
	if err := mgr.Connect(ctx, target); err != nil {
		return err
	}

	fmt.Printf("Paired with %s. Run 'scanlink listen' to stream barcodes.\n", target.Name)
	return nil
}
