package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/checkpoint-edu/checkpoint/internal/storage"
	"github.com/spf13/cobra"
)

func StorageCmd(cfg *config.Config) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and clean the upload store",
	}

	storageCmd.AddCommand(&cobra.Command{
		Use:   "ls [prefix]",
		Short: "List stored files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(cfg)
			if err != nil {
				return err
			}

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			refs, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	})

	storageCmd.AddCommand(&cobra.Command{
		Use:   "rm <ref>...",
		Short: "Delete stored files and print a per-file report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(cfg)
			if err != nil {
				return err
			}

			result := store.DeleteBatch(cmd.Context(), args)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			err = enc.Encode(result)
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d of %d files could not be deleted", len(result.Errors), len(args))
			}
			return nil
		},
	})

	return storageCmd
}
