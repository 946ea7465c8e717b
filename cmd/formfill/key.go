package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/v0xg/formfill/internal/ai"
	"github.com/v0xg/formfill/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage stored provider API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store the API key for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerArg(args[0])
			if err != nil {
				return err
			}
			key := strings.TrimSpace(args[1])
			if key == "" {
				return fmt.Errorf("key must not be empty")
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			if err := st.SetCredential(provider, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s key to %s\n", provider, st.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <provider>",
		Short: "Remove the stored API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerArg(args[0])
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			if err := st.SetCredential(provider, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s key\n", provider)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List stored keys (masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			keys, err := st.Credentials()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys stored. Set one with `formfill key set <provider> <key>`.")
				return nil
			}
			providers := make([]string, 0, len(keys))
			for p := range keys {
				providers = append(providers, p)
			}
			sort.Strings(providers)
			for _, p := range providers {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", p, maskKey(keys[p]))
			}
			return nil
		},
	})
	return cmd
}

func newLastCmd() *cobra.Command {
	var clearLog bool
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the most recent provider request and response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			if clearLog {
				if err := st.ClearExchange(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared recorded exchange")
				return nil
			}
			ex, err := st.LastExchange()
			if err != nil {
				return err
			}
			if ex == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No exchange recorded yet.")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ex)
		},
	}
	cmd.Flags().BoolVar(&clearLog, "clear", false, "Forget the recorded exchange")
	return cmd
}

func providerArg(name string) (string, error) {
	provider := ai.CanonicalProvider(name)
	if provider == "" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("unknown provider %q (use gemini, claude or openai)", name)
	}
	return provider, nil
}

// maskKey keeps the first and last four characters of long keys
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
