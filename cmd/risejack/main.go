package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"

	"github.com/edsphinx/risejack-sub000/internal/chain"
	"github.com/edsphinx/risejack-sub000/internal/credstore"
	"github.com/edsphinx/risejack-sub000/internal/pipeline"
	"github.com/edsphinx/risejack-sub000/internal/reconciler"
	"github.com/edsphinx/risejack-sub000/internal/watcher"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "risejack: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "risejack",
		Short: "Client for the risejack on-chain blackjack table",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			viper.SetEnvPrefix("RISEJACK")
			viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			viper.AutomaticEnv()
			return viper.BindPFlags(cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.String("node", "tcp://127.0.0.1:26657", "CometBFT RPC address")
	flags.String("home", defaultHome(), "client home directory (keys and session credentials)")
	flags.String("player", "", "player address")
	flags.String("token", "rjk", "bet token denom")
	flags.Bool("verbose", false, "debug logging")

	root.AddCommand(
		newKeygenCmd(),
		newBalanceCmd(),
		newWatchCmd(),
		newGrantCmd(),
		newRevokeCmd(),
		newPlayCmd("bet", "Place a bet", true),
		newPlayCmd("hit", "Take another card", false),
		newPlayCmd("stand", "Stand on the current hand", false),
		newPlayCmd("double", "Double down", false),
		newPlayCmd("surrender", "Surrender the hand", false),
		newPlayCmd("cancel", "Cancel a stuck game and reclaim the bet", false),
	)
	return root
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".risejack"
	}
	return filepath.Join(home, ".risejack")
}

// clientContext bundles everything a subcommand needs.
type clientContext struct {
	logger     log.Logger
	rpc        *rpchttp.HTTP
	reader     *chain.Reader
	submitter  *chain.Submitter
	signer     *fileWalletSigner
	creds      *credstore.Store
	watcher    *watcher.Watcher
	reconciler *reconciler.Reconciler

	player string
	token  string
	home   string
}

func buildContext(needWS bool) (*clientContext, error) {
	player := viper.GetString("player")
	if player == "" {
		return nil, fmt.Errorf("--player is required (or RISEJACK_PLAYER)")
	}

	logger := log.NewLogger(os.Stderr)
	if !viper.GetBool("verbose") {
		filter, err := log.ParseLogLevel("info")
		if err != nil {
			return nil, err
		}
		logger = log.NewLogger(os.Stderr, log.FilterOption(filter))
	}

	rpc, err := rpchttp.New(viper.GetString("node"))
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	if needWS {
		if err := rpc.Start(); err != nil {
			return nil, fmt.Errorf("rpc websocket: %w", err)
		}
	}

	home := viper.GetString("home")
	reader := chain.NewReader(rpc, logger)
	submitter := chain.NewSubmitter(rpc, logger)
	signer := newFileWalletSigner(filepath.Join(home, "keys"), player)
	registrar := chain.NewSessionRegistrar(reader, submitter, signer, logger)
	creds := credstore.New(filepath.Join(home, "sessions"), registrar, terminalApprover{}, logger)

	return &clientContext{
		logger:     logger,
		rpc:        rpc,
		reader:     reader,
		submitter:  submitter,
		signer:     signer,
		creds:      creds,
		watcher:    watcher.New(rpc, logger),
		reconciler: reconciler.New(reader, reconciler.DefaultConfig(), logger),
		player:     player,
		token:      viper.GetString("token"),
		home:       home,
	}, nil
}

// newPipeline fetches the table limits once so bet validation stays local.
func (c *clientContext) newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	limits, err := c.reader.GetBetLimits(ctx, c.token)
	if err != nil {
		return nil, fmt.Errorf("fetch bet limits: %w", err)
	}
	cfg := pipeline.Config{
		Player: c.player,
		Token:  c.token,
		Scope:  defaultScope(c.token),
		Limits: limits,
		BeforeSubmit: func() {
			c.reconciler.PreAction()
		},
		OnConfirmed: func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.reconciler.Refresh(refreshCtx, true)
		},
	}
	return pipeline.New(cfg, c.creds, c.submitter, c.reader, c.signer, c.logger), nil
}

func defaultScope(token string) credstore.Scope {
	return credstore.Scope{
		Tag: "blackjack-v1",
		Operations: []string{
			chain.TxPlaceBet, chain.TxHit, chain.TxStand,
			chain.TxDouble, chain.TxSurrender, chain.TxCancelStuck,
		},
		SpendCeiling: "1000000",
		Token:        token,
	}
}
