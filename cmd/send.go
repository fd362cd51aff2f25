package cmd

import (
	"errors"
	"fmt"
	"os"

	"porter/internal/app"
	"porter/internal/node"
	"porter/internal/session"
	"porter/internal/ui"
	"porter/pkg/units"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <path>",
	Short: "Upload a file or directory to the storage network",
	Long: `Upload a file or a directory to the storage network through the
local node. Directories are packed into a single collection upload.

Progress is shown while the transfer propagates. The first Ctrl-C
detaches: the upload keeps running in the background and its result is
still recorded locally. A second Ctrl-C aborts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(args[0])
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel, signals := createContext()
	defer cancel()

	var sess *session.Session
	if fi.IsDir() {
		sess, err = a.StartDirectoryUpload(ctx, path)
	} else {
		sess, err = a.StartFileUpload(ctx, path)
	}
	if err != nil {
		if errors.Is(err, node.ErrUnreachable) {
			return fmt.Errorf("node is unreachable at %s: %w", cfg.API, err)
		}
		return err
	}

	go func() {
		detached := false
		for range signals {
			if !detached {
				detached = true
				sess.Detach()
				fmt.Fprintln(os.Stderr, "\ndetached: upload continues in the background, Ctrl-C again to abort")
				continue
			}
			cancel()
			return
		}
	}()

	ui.NewProgressUI().Run(sess.Updates())
	<-sess.Done()

	res := sess.Result()
	if res.Err != nil {
		return res.Err
	}

	rec, _ := a.Record(res.Handle)
	fmt.Printf("transfer:  %s\n", res.Handle)
	fmt.Printf("address:   %s\n", res.Address)
	if rec.IsCollection {
		var total int64
		for _, e := range rec.Entries {
			total += e.Size
		}
		fmt.Printf("files:     %d (%s)\n", rec.FileCount, units.FormatBytes(total))
		if rec.EntryPoint != "" {
			fmt.Printf("entry:     %s\n", rec.EntryPoint)
		}
	} else {
		fmt.Printf("size:      %s\n", units.FormatBytes(fi.Size()))
	}
	if res.Synced {
		fmt.Println("status:    fully synced with the network")
	} else {
		fmt.Println("status:    still propagating, check later with 'porter list'")
	}
	return nil
}
