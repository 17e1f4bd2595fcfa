package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MJE43/lotto-desk/internal/fair"
)

func newFairCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fair",
		Short: "Inspect and verify seed-committed draws",
	}
	cmd.AddCommand(newFairCommitmentCmd(g), newFairVerifyCmd(g), newFairRotateCmd(g))
	return cmd
}

func (g *globalFlags) dealer() (*fair.Dealer, error) {
	cfg, _, err := g.load()
	if err != nil {
		return nil, err
	}
	return fair.NewDealer(fair.NewVault(cfg.Fair.Service, cfg.Fair.FallbackPath), cfg.Fair.ClientSeed)
}

func newFairCommitmentCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commitment",
		Short: "Print the hash of the active server seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := g.dealer()
			if err != nil {
				return err
			}
			out := map[string]any{
				"serverSeedHash": d.Commitment(),
				"clientSeed":     d.ClientSeed(),
				"nonce":          d.Nonce(),
			}
			return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "server seed hash: %s\nclient seed:      %s\nnonce:            %d\n",
					d.Commitment(), d.ClientSeed(), d.Nonce())
			})
		},
	}
}

func newFairVerifyCmd(g *globalFlags) *cobra.Command {
	var (
		serverSeed string
		clientSeed string
		nonce      uint64
	)
	cmd := &cobra.Command{
		Use:   "verify <matrix>",
		Short: "Recompute a draw from revealed seeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mcfg, err := playableConfig(args[0])
			if err != nil {
				return err
			}
			if nonce == 0 {
				return fmt.Errorf("--nonce must be at least 1")
			}
			d, err := fair.Verify(serverSeed, clientSeed, nonce, mcfg)
			if err != nil {
				return err
			}
			out := map[string]any{"draw": d, "serverSeedHash": fair.HashSeed(serverSeed)}
			return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "%s\nserver seed hash: %s\n", formatNumbers(d.Numbers, d.Special, mcfg.SpecialLabel), fair.HashSeed(serverSeed))
			})
		},
	}
	cmd.Flags().StringVar(&serverSeed, "server-seed", "", "revealed server seed")
	cmd.Flags().StringVar(&clientSeed, "client-seed", "", "client seed")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "draw nonce")
	_ = cmd.MarkFlagRequired("server-seed")
	_ = cmd.MarkFlagRequired("client-seed")
	_ = cmd.MarkFlagRequired("nonce")
	return cmd
}

func newFairRotateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Reveal the active server seed and commit to a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := g.dealer()
			if err != nil {
				return err
			}
			rot, err := d.Rotate()
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), rot, func(w io.Writer) {
				fmt.Fprintf(w, "previous seed:   %s\nprevious hash:   %s\nlast nonce:      %d\nnext commitment: %s\n",
					rot.PreviousSeed, rot.PreviousHash, rot.LastNonce, rot.NextCommitment)
			})
		},
	}
}
