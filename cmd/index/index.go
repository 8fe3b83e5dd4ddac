package index

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/modelcache"
)

// Command creates the command group that manages tenant face indexes.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage per-tenant face indexes",
	}
	cmd.AddCommand(importCommand(settings), showCommand(settings))
	return cmd
}

func importCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import <tenant-id> <enrollments.yaml>",
		Short: "Replace a tenant's index with the embeddings in a YAML file",
		Long: `Replace a tenant's index with the embeddings in a YAML file.

The file is a list of entries with a label and an embedding:

  - label: ana
    embedding: [0.12, -0.03, ...]

Running streams pick the new index up on their next frame.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			labels, vectors, err := modelcache.ReadEnrollments(f)
			if err != nil {
				return err
			}

			dir := modelcache.TenantDir(conf.ResolvePath(settings.Models.Root), tenantID)
			if err := modelcache.WriteIndex(dir, labels, vectors); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d embeddings to %s\n", len(labels), dir)
			return nil
		},
	}
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tenant-id>",
		Short: "Print the labels of a tenant's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}

			idx, err := modelcache.New(conf.ResolvePath(settings.Models.Root), nil).Load(tenantID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tenant %d: %d embeddings of dimension %d, updated %s\n",
				tenantID, idx.Len(), idx.Dim(), idx.ModTime().Format("2006-01-02 15:04:05"))
			for i, label := range idx.Labels() {
				fmt.Fprintf(out, "%4d  %s\n", i, label)
			}
			return nil
		},
	}
}

func parseTenant(v string) (uint, error) {
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid tenant id %q", v)
	}
	return uint(id), nil
}
