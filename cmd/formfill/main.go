package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/v0xg/formfill/internal/config"
	"github.com/v0xg/formfill/internal/observability"
)

// errFillFailed marks a run whose result was already printed
var errFillFailed = errors.New("fill failed")

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	observability.Sync()

	if err != nil {
		if !errors.Is(err, errFillFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "formfill",
		Short: "Fill web forms with realistic AI-generated data",
		Long: `formfill opens a web form in a real browser, asks an AI model for
plausible values for every field, fills them in, submits, and retries when
the page reports a validation error.

Example:
  formfill fill "https://example.com/signup"
  formfill key set gemini AIza...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
			observability.InitializeLogger(cfg.Logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./formfill.yaml or ~/.formfill/formfill.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	_ = v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newFillCmd(), newKeyCmd(), newLastCmd())
	return rootCmd
}
