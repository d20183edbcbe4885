// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/keychain"
)

var logoutAll bool

// logoutCmd removes stored secrets from the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key from the OS keychain",
	Long: `The logout command removes the language-model API key from the OS keychain.
With --all the stored database DSN is removed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return apperrors.Wrap(apperrors.Config, "secure storage is not available on this system", err)
		}
		if logoutAll {
			if err := km.ClearAll(); err != nil {
				return apperrors.Wrap(apperrors.Config, "failed to clear keychain", err)
			}
			printSuccess("API key and database connection removed")
			return nil
		}
		if err := km.ClearAPIKey(); err != nil {
			return apperrors.Wrap(apperrors.Config, "failed to remove API key", err)
		}
		printSuccess("API key removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Also remove the stored database connection")
}
