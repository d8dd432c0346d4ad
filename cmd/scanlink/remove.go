package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Forget the paired scanner",
	Long: `Disconnect from the scanner if connected and delete the saved pairing.

After removal, 'scanlink listen' will refuse to start until a new scanner
is paired with 'scanlink connect'.`,
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
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

	if err := mgr.RemoveScanner(); err != nil {
		return err
	}

	fmt.Println("Scanner pairing removed.")
	return nil
}
