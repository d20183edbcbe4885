// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"precinct/cli/internal/config"
	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/keychain"
	"precinct/cli/internal/llm"
	"precinct/cli/internal/logging"
)

var loginSkipCheck bool

// loginCmd stores the language-model API key in the OS keychain after a
// one-token test call.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store the language-model API key in the OS keychain",
	Long: `The login command prompts for the API key of the configured model provider
(OpenAI by default, Anthropic for claude-* models or --provider anthropic),
checks it with a small request and stores it in the OS keychain.

The key is never written to the config file. PRECINCT_API_KEY, OPENAI_API_KEY
and ANTHROPIC_API_KEY take precedence over the stored key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFileFlag)
		if err != nil {
			return err
		}
		provider := llm.ResolveProvider(cfg.Provider, cfg.Model)

		key, err := promptSecret("Enter " + provider + " API key: ")
		if err != nil {
			return apperrors.Wrap(apperrors.Config, "cannot read API key", err)
		}
		if key == "" {
			return apperrors.New(apperrors.Config, "API key is required")
		}

		if !loginSkipCheck {
			client, err := llm.New(llm.Options{
				Provider: provider,
				Model:    cfg.Model,
				APIKey:   key,
				BaseURL:  cfg.BaseURL,
			})
			if err != nil {
				return err
			}
			err = withSpinner("Checking API key", func() error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				_, err := client.Complete(ctx, llm.Prompt{
					Component: "login",
					System:    "Reply with the single word: ok",
					User:      "ok",
				})
				return err
			})
			if err != nil {
				return apperrors.Wrap(apperrors.KindOf(err), "the key was rejected or the provider is unreachable", err)
			}
		}

		km, err := keychain.GetManager()
		if err != nil {
			return apperrors.Wrap(apperrors.Config, "secure storage is not available on this system", err)
		}
		if err := km.SaveAPIKey(key); err != nil {
			return apperrors.Wrap(apperrors.Config, "failed to save API key", err)
		}
		printSuccess("API key %s saved for %s", logging.Mask(key), provider)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginSkipCheck, "no-check", false, "Store the key without a test request")
}
