// Package commands is the operator CLI for a controller account.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/better-wallet/controller/internal/config"
	"github.com/better-wallet/controller/internal/controller"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/sealing"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/internal/storage"
	"github.com/better-wallet/controller/pkg/felt"
)

var (
	rpcURL        string
	username      string
	addressHex    string
	ownerKey      string
	guardianKey   string
	origin        string
	classHashHex  string
	expiryCheck   bool
	sessionMaxFee string

	appCtx *app
)

// app is the state shared by every subcommand for one invocation.
type app struct {
	cfg        *config.Config
	provider   *provider.Client
	backend    storage.Backend
	controller *controller.Controller
	closers    []func()
}

// ctx returns a context carrying the --origin, when one was given.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if origin != "" {
		ctx = storage.WithOrigin(ctx, origin)
	}
	return ctx
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "controller",
		Short:         "Operate a session-enabled smart account",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			appCtx = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appCtx != nil {
				appCtx.close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rpcURL, "rpc", "", "chain RPC URL (default $UPSTREAM_RPC_URL)")
	flags.StringVarP(&username, "username", "u", "", "account username, used as the deployment salt")
	flags.StringVar(&addressHex, "address", "", "account address (default: derived from username and owner)")
	flags.StringVar(&ownerKey, "owner-key", os.Getenv("CONTROLLER_OWNER_KEY"), "owner private key in hex (default $CONTROLLER_OWNER_KEY)")
	flags.StringVar(&guardianKey, "guardian-key", os.Getenv("CONTROLLER_GUARDIAN_KEY"), "guardian private key in hex (default $CONTROLLER_GUARDIAN_KEY)")
	flags.StringVar(&origin, "origin", "", "dApp origin that scopes the stored session")
	flags.StringVar(&classHashHex, "class-hash", "", "account class hash (default: controller class)")
	flags.BoolVar(&expiryCheck, "expiry-check", false, "treat expired sessions as absent instead of letting the chain reject them")
	flags.StringVar(&sessionMaxFee, "session-max-fee", "", "cap on the max fee of session-signed transactions")

	root.AddCommand(
		addressCmd(),
		deployCmd(),
		sessionCmd(),
		executeCmd(),
		transferCmd(),
		estimateCmd(),
		outsideCmd(),
		delegateCmd(),
	)
	return root
}

// setup loads configuration and builds the provider, storage backend and
// controller for this invocation.
func setup(ctx context.Context) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	if err := logger.Init(); err != nil {
		return nil, err
	}

	if username == "" {
		return nil, fmt.Errorf("--username is required")
	}
	if ownerKey == "" {
		return nil, fmt.Errorf("--owner-key or CONTROLLER_OWNER_KEY is required")
	}

	url := rpcURL
	if url == "" {
		url = cfg.UpstreamRPCURL
	}
	if url == "" {
		return nil, fmt.Errorf("--rpc or UPSTREAM_RPC_URL is required")
	}

	a := &app{cfg: cfg}

	a.provider, err = provider.NewClient(ctx, url)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.provider.Close)

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.backend = backend
	a.closers = append(a.closers, closeBackend)

	a.controller, err = buildController(ctx, a.provider, backend)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openBackend opens the configured storage backend behind the configured
// sealing codec.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	sealer, err := sealing.New(ctx, cfg.Sealing())
	if err != nil {
		return nil, nil, fmt.Errorf("sealing: %w", err)
	}
	codec := storage.CodecFor(sealer)

	switch cfg.StorageBackend {
	case config.StorageFile:
		b, err := storage.NewFileBackend(cfg.StorageDir, codec)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	case config.StoragePostgres:
		b, err := storage.NewPostgresBackend(ctx, cfg.PostgresDSN, codec)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return storage.NewMemoryBackend(codec), func() {}, nil
	}
}

func buildController(ctx context.Context, p *provider.Client, backend storage.Backend) (*controller.Controller, error) {
	ok, err := signer.FromHex(ownerKey)
	if err != nil {
		return nil, fmt.Errorf("owner key: %w", err)
	}
	owner := signer.NewOwner(ok)

	var guardian signer.Signer
	if guardianKey != "" {
		gk, err := signer.FromHex(guardianKey)
		if err != nil {
			return nil, fmt.Errorf("guardian key: %w", err)
		}
		guardian = signer.NewGuardian(gk)
	}

	classHash := controller.DefaultClassHash
	if classHashHex != "" {
		classHash, err = felt.FromString(classHashHex)
		if err != nil {
			return nil, fmt.Errorf("class hash: %w", err)
		}
	}

	opts := []controller.Option{controller.WithClassHash(classHash)}
	if expiryCheck {
		opts = append(opts, controller.WithExpiryCheck())
	}
	if sessionMaxFee != "" {
		fee, err := felt.FromString(sessionMaxFee)
		if err != nil {
			return nil, fmt.Errorf("session max fee: %w", err)
		}
		opts = append(opts, controller.WithSessionMaxFee(fee))
	}

	var address felt.Felt
	if addressHex != "" {
		address, err = felt.FromString(addressHex)
		if err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
	} else {
		address, err = controller.AccountAddress(username, owner, classHash)
		if err != nil {
			return nil, err
		}
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	return controller.New(username, p, owner, guardian, address, chainID, backend, opts...), nil
}
