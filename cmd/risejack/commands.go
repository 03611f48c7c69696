package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edsphinx/risejack-sub000/internal/game"
	"github.com/edsphinx/risejack-sub000/internal/pipeline"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet key for the player",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContext(false)
			if err != nil {
				return err
			}
			k, err := c.signer.Generate()
			if err != nil {
				return err
			}
			cmd.Printf("wallet key written for %s (pubkey %x)\n", k.Player, k.PubKey)
			cmd.Println("register it on-chain with your faucet/onboarding flow before playing")
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the player's token balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContext(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			acct, err := c.reader.GetAccount(ctx, c.player)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s %s\n", acct.Addr, acct.Balance, c.token)
			return nil
		},
	}
}

func newGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant-session",
		Short: "Grant a delegated session key for fast-path play",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContext(false)
			if err != nil {
				return err
			}
			cred, err := c.creds.Create(cmd.Context(), c.player, defaultScope(c.token))
			if err != nil {
				return err
			}
			cmd.Printf("session key granted, expires %s\n", cred.Expiry.Format(time.RFC3339))
			return nil
		},
	}
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-session",
		Short: "Revoke the delegated session key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContext(false)
			if err != nil {
				return err
			}
			cred, ok, err := c.creds.Get(c.player)
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("no session key stored")
				return nil
			}
			if err := c.creds.Revoke(cmd.Context(), cred); err != nil {
				return err
			}
			cmd.Println("session key revoked")
			return nil
		},
	}
}

// newPlayCmd builds one game action command. Bet takes an amount argument;
// the rest act on the current hand.
func newPlayCmd(name, short string, takesAmount bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContext(false)
			if err != nil {
				return err
			}
			c.reconciler.SetPlayer(c.player)

			ctx := cmd.Context()
			setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			c.reconciler.Refresh(setupCtx, true)
			p, err := c.newPipeline(setupCtx)
			cancel()
			if err != nil {
				return err
			}

			// Hand actions need a live hand; betting starts one.
			if name != "bet" && name != "cancel" {
				if v := c.reconciler.View(); v.State == game.StateIdle || v.State == game.StateTerminal {
					return fmt.Errorf("%s", game.SafeMessage(game.ErrNoActiveGame.Wrapf("cannot %s", name)))
				}
			}

			var res pipeline.Result
			switch name {
			case "bet":
				if len(args) != 1 {
					return fmt.Errorf("usage: risejack bet <amount>")
				}
				res, err = p.PlaceBet(ctx, args[0])
			case "hit":
				res, err = p.Hit(ctx)
			case "stand":
				res, err = p.Stand(ctx)
			case "double":
				res, err = p.Double(ctx)
			case "surrender":
				res, err = p.Surrender(ctx)
			case "cancel":
				res, err = p.CancelStuckGame(ctx)
			}
			if err != nil {
				c.logger.Debug("action failed", "op", name, "err", err)
				return fmt.Errorf("%s", game.SafeMessage(err))
			}
			cmd.Printf("%s confirmed via %s (tx %s)\n", name, res.AuthMode, res.TxHash)
			printView(cmd, c.reconciler.View())
			return nil
		},
	}
	if takesAmount {
		cmd.Use = name + " <amount>"
	}
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the reconciled view of the player's hand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContext(true)
			if err != nil {
				return err
			}
			defer func() { _ = c.rpc.Stop() }()

			c.reconciler.SetPlayer(c.player)
			initCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			c.reconciler.Refresh(initCtx, true)
			cancel()

			handlers := c.reconciler.Handlers()
			handlers.Disconnected = func(err error) {
				cmd.PrintErrln(game.SafeMessage(err))
			}
			sub, err := c.watcher.Start(cmd.Context(), c.player, handlers)
			if err != nil {
				return err
			}
			defer sub.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-sigCh:
					return nil
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
					printView(cmd, c.reconciler.View())
					if !sub.IsConnected() {
						cmd.PrintErrln("stream disconnected; press Ctrl-C and rerun watch to reconnect")
					}
				}
			}
		},
	}
}

func printView(cmd *cobra.Command, v game.GameView) {
	line := fmt.Sprintf("[%s] player %s (%s)  dealer %s (%s)",
		v.State,
		cardsString(v.PlayerCards), valueString(v.PlayerHandValue),
		cardsString(v.DealerCards), valueString(v.DealerVisibleValue))
	if !v.Bet.Amount.IsNil() && v.Bet.Amount.IsPositive() {
		line += fmt.Sprintf("  bet %s %s", v.Bet.Amount, v.Bet.Token)
		if v.IsDoubled {
			line += " (doubled)"
		}
	}
	if v.Result != nil {
		line += fmt.Sprintf("  result: %s", *v.Result)
	}
	cmd.Println(line)
}

func cardsString(cards []game.Card) string {
	if len(cards) == 0 {
		return "--"
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func valueString(v game.HandValue) string {
	if v.Value == 0 {
		return "-"
	}
	if v.IsSoft {
		return fmt.Sprintf("soft %d", v.Value)
	}
	return fmt.Sprintf("%d", v.Value)
}
