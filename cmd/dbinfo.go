// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"precinct/cli/internal/dsn"
	"precinct/cli/internal/logging"
	"precinct/cli/internal/sqlexec"
)

var dbinfoCheck bool

// dbinfoCmd shows which connection a session would use, with the password
// masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the database connection precinct would use",
	Long: `The dbinfo command resolves the database connection exactly as an optimization
session would (--uri, --service, PRECINCT_DSN, DATABASE_URL, the OS keychain,
the service file, then PG* variables) and prints it with the password masked.

With --check it also connects and reports the server version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := resolveConnection()
		if err != nil {
			return err
		}

		body := connectionSummary(res)

		if dbinfoCheck {
			err := withSpinner("Connecting", func() error {
				ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
				defer cancel()
				h, err := sqlexec.Open(ctx, res.ConnString)
				if err != nil {
					return err
				}
				defer h.Close()
				ver, err := h.ServerVersion(ctx)
				if err != nil {
					return err
				}
				body += fmt.Sprintf("\nTarget: %s\nServer: PostgreSQL %s", h.Target(), ver)
				return nil
			})
			if err != nil {
				return err
			}
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
			Println(body)
		pterm.Println()
		pterm.Println("To store a different default connection, run: precinct connect")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	f := dbinfoCmd.Flags()
	f.StringVar(&uriFlag, "uri", "", "PostgreSQL connection URI")
	f.StringVar(&serviceFlag, "service", "", "Service name in the pg_service.conf file")
	f.StringVar(&serviceFileFlag, "service-file", "", "Path to pg_service.conf")
	dbinfoCmd.MarkFlagsMutuallyExclusive("uri", "service")
	f.BoolVar(&dbinfoCheck, "check", false, "Connect and report the server version")
}

// connectionSummary is the masked connection string, its source and the
// database it names.
func connectionSummary(res dsn.Resolved) string {
	shown := maskPassword(res.ConnString)
	if res.Source == dsn.SourceLibpqEnv {
		shown = "(taken from PG* environment variables)"
	}
	body := fmt.Sprintf("%s\n\nSource: %s", shown, res.Describe())
	if name := dsn.DatabaseName(res.ConnString); name != "" {
		body += "\nDatabase: " + name
	}
	return body
}

// maskPassword replaces the password of a connection string with ***.
// URIs keep their user name; keyword/value strings are masked by
// logging.Mask.
func maskPassword(conn string) string {
	if !dsn.IsURI(conn) {
		return logging.Mask(conn)
	}
	u, err := url.Parse(conn)
	if err != nil {
		return logging.Mask(conn)
	}
	if u.User == nil {
		return conn
	}
	if _, ok := u.User.Password(); !ok {
		return conn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}
