package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/pkg/felt"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the session stored for --origin",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if origin == "" {
				return fmt.Errorf("--origin is required for session commands")
			}
			return cmd.Root().PersistentPreRunE(cmd, args)
		},
	}
	cmd.AddCommand(sessionCreateCmd(), sessionShowCmd(), sessionRevokeCmd())
	return cmd
}

func sessionCreateCmd() *cobra.Command {
	var (
		allowed   []string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Authorize a new session key for the given methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			methods := make([]session.AllowedMethod, 0, len(allowed))
			for _, raw := range allowed {
				m, err := parseAllowed(raw)
				if err != nil {
					return err
				}
				methods = append(methods, m)
			}

			expiresAt := uint64(time.Now().Add(expiresIn).Unix())
			created, err := appCtx.controller.CreateSession(appCtx.ctx(cmd), methods, expiresAt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expires at: %s\n", time.Unix(int64(expiresAt), 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "authorization: %s\n", feltList(created.Authorization))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&allowed, "allow", nil, "allowed method as <contract>:<entrypoint> (repeatable)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 24*time.Hour, "session lifetime")
	return cmd
}

// sessionView is the printable part of stored session metadata. The private
// key never leaves storage.
type sessionView struct {
	Methods       []session.AllowedMethod `json:"methods"`
	ExpiresAt     string                  `json:"expires_at"`
	SessionKey    felt.Felt               `json:"session_key"`
	MaxFee        *felt.Felt              `json:"max_fee,omitempty"`
	Authorization []felt.Felt             `json:"authorization"`
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := appCtx.controller.Session(appCtx.ctx(cmd))
			if err != nil {
				return err
			}
			if meta == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no session")
				return nil
			}

			view := sessionView{
				Methods:       meta.Session.Methods,
				ExpiresAt:     time.Unix(int64(meta.Session.ExpiresAt), 0).UTC().Format(time.RFC3339),
				SessionKey:    meta.Session.SessionKey,
				MaxFee:        meta.MaxFee,
				Authorization: meta.Credentials.Authorization,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}

func sessionRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.controller.RevokeSession(appCtx.ctx(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session revoked")
			return nil
		},
	}
}

func feltList(values []felt.Felt) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v.String()
	}
	return out + "]"
}
