package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd() *cobra.Command {
	flags := &targetFlags{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register and unregister an encapsulation session (reachability check)",
		Long: `Open a TCP connection, register an encapsulation session, print the
granted session handle and unregister again. A rejected registration shows
the status the target returned and, for an unsupported revision, the
protocol version it offered.`,
		Example: `  enipcore register --ip 10.0.0.50
  enipcore register --ip 10.0.0.50 --via ssh://ops@jump.example:22`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.ip == "" {
				return missingFlagError(cmd, "--ip")
			}
			return runRegister(cmd, flags)
		},
	}
	addTargetFlags(cmd, flags)
	return cmd
}

func runRegister(cmd *cobra.Command, flags *targetFlags) error {
	logger, err := flags.logger()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := commandContext(cmd)
	live, err := openSession(ctx, sessionSetup{Target: flags.target(), Logger: logger, PCAP: flags.pcap})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s session 0x%08X with %s\n", okStyle.Render("registered"), live.Handle(), live.target.IP)
	if err := live.Close(ctx); err != nil {
		return fmt.Errorf("unregister: %w", err)
	}
	fmt.Fprintf(out, "%s\n", dimStyle.Render("unregistered"))
	return nil
}
