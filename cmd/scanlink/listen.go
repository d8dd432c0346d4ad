package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scanlink/scanlink/connection"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream barcodes from the paired scanner",
	Long: `Connect to the saved scanner and print each scanned barcode on its own line.

If the scanner drops out of range, scanlink keeps retrying with backoff
and resumes streaming once it reappears. Stop with Ctrl+C.`,
	RunE: runListen,
}

var listenSilent bool

func init() {
	listenCmd.Flags().BoolVar(&listenSilent, "silent", false, "Don't ring the terminal bell on each scan")
}

func runListen(cmd *cobra.Command, args []string) error {
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

	// The bell only makes sense on an interactive terminal; piped output
	// must stay clean for downstream consumers.
	if !listenSilent && term.IsTerminal(int(os.Stdout.Fd())) {
		mgr.SetFeedback(connection.FeedbackFunc(func() {
			fmt.Fprint(os.Stderr, "\a")
		}))
	}

	states := mgr.States()
	barcodes := mgr.Barcodes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := mgr.AutoConnect(ctx); err != nil {
		return err
	}

	status := color.New(color.Faint)
	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nStopping...")
			return nil

		case s := <-states:
			switch s {
			case connection.Connected:
				status.Fprintln(os.Stderr, "-- scanner connected --")
			case connection.Reconnecting:
				status.Fprintln(os.Stderr, "-- scanner lost, reconnecting --")
			case connection.Disconnected:
				status.Fprintln(os.Stderr, "-- scanner disconnected --")
				return fmt.Errorf("scanner could not be reached: reconnection attempts exhausted")
			}

		case barcode := <-barcodes:
			fmt.Println(barcode)
		}
	}
}
