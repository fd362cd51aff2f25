package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"porter/internal/app"
	"porter/internal/node"
	"porter/internal/progress"
	"porter/pkg/units"

	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known transfers, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList() error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel, _ := createContext()
	defer cancel()

	infos, err := a.ListKnownTransfers(ctx)
	if err != nil {
		if errors.Is(err, node.ErrUnreachable) {
			return fmt.Errorf("node is unreachable at %s, transfer list unavailable until it is back: %w", cfg.API, err)
		}
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no transfers known")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSFER\tNAME\tSIZE\tPHASE\tPERCENT\tADDRESS")
	for _, info := range infos {
		name, size, address := "-", "-", "-"
		var total int64
		if rec := info.Record; rec != nil {
			name = rec.Name
			total = rec.Size
			if total > 0 {
				size = units.FormatBytes(total)
			}
			if rec.Address != "" {
				address = rec.Address
			}
		}
		snap := progress.Reconcile(info.Status, total)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			info.Handle, name, size, snap.Phase, snap.Percent, address)
	}
	return w.Flush()
}
