package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// VersionCommand печатает версию сборки
type VersionCommand struct {
	cmd     *cobra.Command
	Version string
}

func (v *VersionCommand) Meta() *cobra.Command {
	if v.cmd == nil {
		v.cmd = &cobra.Command{
			Use:   "version",
			Short: "Print build version",
			Args:  cobra.NoArgs,
		}
	}
	return v.cmd
}

func (v *VersionCommand) Execute(_ context.Context, cmd *cobra.Command, _ []string) error {
	version := v.Version
	if version == "" {
		version = "dev"
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
	return err
}
