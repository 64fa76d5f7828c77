package commands

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/better-wallet/controller/internal/contract"
	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

func addressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the account address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), appCtx.controller.Address())
			return nil
		},
	}
}

func deployCmd() *cobra.Command {
	var maxFee string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the account contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, err := felt.FromString(maxFee)
			if err != nil {
				return fmt.Errorf("--max-fee: %w", err)
			}
			res, err := appCtx.controller.Deploy(appCtx.ctx(cmd), fee)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", res.ContractAddress)
			fmt.Fprintf(out, "transaction: %s\n", res.TransactionHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&maxFee, "max-fee", "", "maximum fee for the deployment")
	_ = cmd.MarkFlagRequired("max-fee")
	return cmd
}

func executeCmd() *cobra.Command {
	var (
		specs      []string
		maxFee     string
		multiplier float64
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Sign and send calls with the session when it covers them, else the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := parseCalls(specs)
			if err != nil {
				return err
			}
			return sendCalls(cmd, calls, maxFee, multiplier)
		},
	}
	cmd.Flags().StringArrayVar(&specs, "call", nil, "call as <contract>:<entrypoint>[:<arg>,...] (repeatable)")
	cmd.Flags().StringVar(&maxFee, "max-fee", "", "maximum fee (default: estimate times --fee-multiplier)")
	cmd.Flags().Float64Var(&multiplier, "fee-multiplier", 1.5, "multiplier applied to the fee estimate")
	return cmd
}

func transferCmd() *cobra.Command {
	var (
		maxFee     string
		multiplier float64
	)
	cmd := &cobra.Command{
		Use:   "transfer <token> <recipient> <amount>",
		Short: "Transfer ERC-20 tokens",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := felt.FromString(args[0])
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			recipient, err := felt.FromString(args[1])
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}
			amount, ok := new(big.Int).SetString(args[2], 0)
			if !ok {
				return fmt.Errorf("amount %q is not an integer", args[2])
			}
			call, err := contract.Transfer(token, recipient, amount)
			if err != nil {
				return err
			}
			return sendCalls(cmd, []types.Call{call}, maxFee, multiplier)
		},
	}
	cmd.Flags().StringVar(&maxFee, "max-fee", "", "maximum fee (default: estimate times --fee-multiplier)")
	cmd.Flags().Float64Var(&multiplier, "fee-multiplier", 1.5, "multiplier applied to the fee estimate")
	return cmd
}

// sendCalls executes calls at the account's current nonce. Without maxFee the
// fee is estimated and scaled by multiplier.
func sendCalls(cmd *cobra.Command, calls []types.Call, maxFee string, multiplier float64) error {
	ctx := appCtx.ctx(cmd)
	c := appCtx.controller

	nonce, err := c.Provider().Nonce(ctx, c.Address())
	if err != nil {
		return err
	}

	var fee felt.Felt
	if maxFee != "" {
		if fee, err = felt.FromString(maxFee); err != nil {
			return fmt.Errorf("--max-fee: %w", err)
		}
	} else {
		estimate, err := c.EstimateInvokeFee(ctx, calls, &multiplier)
		if err != nil {
			return err
		}
		fee = estimate.SuggestedMaxFee
	}

	res, err := c.Execute(ctx, calls, nonce, fee)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.TransactionHash)
	return nil
}

func estimateCmd() *cobra.Command {
	var (
		specs      []string
		multiplier float64
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the fee of a call batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := parseCalls(specs)
			if err != nil {
				return err
			}
			estimate, err := appCtx.controller.EstimateInvokeFee(appCtx.ctx(cmd), calls, &multiplier)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "overall fee: %s\n", estimate.OverallFee.Big())
			fmt.Fprintf(out, "suggested max fee: %s\n", estimate.SuggestedMaxFee.Big())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&specs, "call", nil, "call as <contract>:<entrypoint>[:<arg>,...] (repeatable)")
	cmd.Flags().Float64Var(&multiplier, "fee-multiplier", 1.0, "multiplier applied to the fee estimate")
	return cmd
}

func outsideCmd() *cobra.Command {
	var (
		specs    []string
		caller   string
		validFor time.Duration
	)
	cmd := &cobra.Command{
		Use:   "execute-from-outside",
		Short: "Sign calls as an outside execution and hand them to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := parseCalls(specs)
			if err != nil {
				return err
			}

			callerFelt := outside.AnyCaller
			if caller != "" {
				if callerFelt, err = felt.FromString(caller); err != nil {
					return fmt.Errorf("--caller: %w", err)
				}
			}

			nonce, err := randomNonce()
			if err != nil {
				return err
			}

			now := time.Now()
			hash, err := appCtx.controller.ExecuteFromOutside(appCtx.ctx(cmd), outside.Execution{
				Caller:        callerFelt,
				Nonce:         nonce,
				ExecuteAfter:  0,
				ExecuteBefore: uint64(now.Add(validFor).Unix()),
				Calls:         calls,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&specs, "call", nil, "call as <contract>:<entrypoint>[:<arg>,...] (repeatable)")
	cmd.Flags().StringVar(&caller, "caller", "", "address allowed to relay (default: any caller)")
	cmd.Flags().DurationVar(&validFor, "valid-for", 10*time.Minute, "how long the signed execution stays valid")
	return cmd
}

func delegateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Read or change the account's delegate",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the delegate account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			delegate, err := appCtx.controller.DelegateAccount(appCtx.ctx(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), delegate)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <address>",
		Short: "Set the delegate account (always owner-signed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delegate, err := felt.FromString(args[0])
			if err != nil {
				return fmt.Errorf("delegate: %w", err)
			}
			res, err := appCtx.controller.SetDelegateAccount(appCtx.ctx(cmd), delegate)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.TransactionHash)
			return nil
		},
	})
	return cmd
}
