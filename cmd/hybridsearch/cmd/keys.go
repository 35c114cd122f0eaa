package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/auth/apikey"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the index administration endpoints",
		Long: `Keys are stored hashed in the Postgres api_keys table and are checked
when auth.enabled is true and auth.store is postgres.`,
	}
	cmd.AddCommand(newKeysCreateCmd(a), newKeysListCmd(a), newKeysRevokeCmd(a))
	return cmd
}

func (a *app) keyStore(cmd *cobra.Command) (*apikey.PostgresStore, error) {
	stack, err := a.newStack()
	if err != nil {
		return nil, err
	}
	return stack.KeyStore(cmd.Context())
}

func newKeysCreateCmd(a *app) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a key and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return apperrors.InvalidArgumentf("--name is required")
			}
			if ttl < 0 {
				return apperrors.InvalidArgumentf("--ttl must not be negative, got %s", ttl)
			}
			store, err := a.keyStore(cmd)
			if err != nil {
				return err
			}
			var expiresAt *time.Time
			if ttl > 0 {
				t := time.Now().Add(ttl).UTC()
				expiresAt = &t
			}
			raw, err := store.CreateKey(cmd.Context(), name, expiresAt)
			if err != nil {
				return err
			}
			result := map[string]any{"name": name, "key": raw, "expires_at": expiresAt}
			return a.emit(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "Created key %q: %s\n", name, raw)
				fmt.Fprintln(w, "Store it now; it cannot be shown again.")
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime of the key; 0 never expires")
	return cmd
}

func newKeysListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.keyStore(cmd)
			if err != nil {
				return err
			}
			keys, err := store.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd, keys, func(w io.Writer) {
				for _, k := range keys {
					expiry := "never"
					if k.ExpiresAt != nil {
						expiry = k.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\tcreated %s\texpires %s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), expiry)
				}
			})
		},
	}
}

func newKeysRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.keyStore(cmd)
			if err != nil {
				return err
			}
			if err := store.RevokeKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(cmd, map[string]bool{"revoked": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Key revoked")
			})
		},
	}
}
