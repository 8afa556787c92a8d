// Package cli defines the evrctl command tree.
//
// Subcommands are the primary surface. The root command also accepts the
// flag forms older operator scripts use:
//
//	evrctl --createEVRaccounts
//	evrctl --fundMe <recipient-secret> <amount>
//	evrctl --createTrustline <secret>
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	flagCreateAccounts = "createEVRaccounts"
	flagFundMe         = "fundMe"
	flagTrustLine      = "createTrustline"
)

// Root returns the root command for evrctl.
func Root() *cobra.Command {
	var legacy struct {
		createAccounts bool
		fundMe         bool
		trustLine      bool
	}

	cmd := &cobra.Command{
		Use:          "evrctl",
		Short:        "Bootstrap EVR issuance accounts on a Xahau network",
		SilenceUsage: true,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case legacy.fundMe:
				if len(args) != 2 {
					return fmt.Errorf("--%s needs <recipient-secret> <amount>", flagFundMe)
				}
			case legacy.trustLine:
				if len(args) != 1 {
					return fmt.Errorf("--%s needs <secret>", flagTrustLine)
				}
			default:
				if len(args) > 0 {
					return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			switch {
			case legacy.createAccounts:
				return runBootstrap(ctx, out)
			case legacy.fundMe:
				return runFund(ctx, out, args[0], args[1])
			case legacy.trustLine:
				return runTrustLine(ctx, out, args[0], "", "")
			default:
				return cmd.Help()
			}
		},
	}

	cmd.Flags().BoolVar(&legacy.createAccounts, flagCreateAccounts, false, "Same as the bootstrap command")
	cmd.Flags().BoolVar(&legacy.fundMe, flagFundMe, false, "Same as the fund command; takes <recipient-secret> <amount>")
	cmd.Flags().BoolVar(&legacy.trustLine, flagTrustLine, false, "Same as the trustline command; takes <secret>")
	cmd.MarkFlagsMutuallyExclusive(flagCreateAccounts, flagFundMe, flagTrustLine)

	cmd.AddCommand(Bootstrap())
	cmd.AddCommand(Fund())
	cmd.AddCommand(TrustLine())
	cmd.AddCommand(Accounts())
	cmd.AddCommand(Devnet())

	return cmd
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string) error {
	cmd := Root()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
