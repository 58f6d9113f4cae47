package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/enipcore/internal/config"
	"github.com/tturner/enipcore/internal/ui"
)

func newInitCmd() *cobra.Command {
	var output string
	var force, interactive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a request file for batch",
		Long: `Write a request file for "enipcore batch". By default the file reads
the Identity object of 127.0.0.1; --interactive asks for the target and
one request instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}
			cfg := config.CreateDefaultConfig()
			if interactive {
				opts := ui.DefaultWizardOptions()
				if err := ui.BuildWizardForm(&opts).Run(); err != nil {
					return err
				}
				var err error
				if cfg, err = ui.BuildWizardConfig(opts); err != nil {
					return err
				}
			}
			if err := config.WriteConfig(output, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "requests.yaml", "Path to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Build the file with a form")
	return cmd
}
