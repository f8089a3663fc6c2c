package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const appName = "barctl"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Control the status bar bot over its HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate(appName + " version {{.Version}}\n")

	defaultURL := os.Getenv("BARCTL_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.PersistentFlags().String("url", defaultURL, "control API base URL (env BARCTL_URL)")
	cmd.PersistentFlags().String("token", os.Getenv("ADMIN_TOKEN"), "admin token (env ADMIN_TOKEN)")

	cmd.AddCommand(
		newGetCmd("status", "Show deployment mode and bar counts", "/api/status"),
		newGetCmd("bars", "List every bar", "/api/bars"),
		newGetCmd("emojis", "Show the glyph catalog", "/api/emojis"),
		newUpdateCmd(),
		newDropCmd(),
		newHistoryCmd(),
		newGlobalCmd(),
		newStateCmd(),
		newReconcileCmd(),
	)
	return cmd
}

func clientFor(cmd *cobra.Command) *apiClient {
	base, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	return newAPIClient(base, token)
}

// printJSON pretty-prints a response body.
func printJSON(cmd *cobra.Command, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}

func run(cmd *cobra.Command, method, path string, body any) error {
	out, err := clientFor(cmd).do(cmd.Context(), method, path, body)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	return printJSON(cmd, out)
}

func newGetCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, path, nil)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <channel-id> <text...>",
		Short: "Rewrite one bar's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, barPath(args[0], "update"), map[string]string{"text": strings.Join(args[1:], " ")})
		},
	}
}

func newDropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop <channel-id>",
		Short: "Move a bar to the bottom of its channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetBool("keep-check")
			var body any
			if keep {
				body = map[string]bool{"move_check": false}
			}
			return run(cmd, http.MethodPost, barPath(args[0], "drop"), body)
		},
	}
	cmd.Flags().Bool("keep-check", false, "leave a separate checkmark where it is")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <channel-id>",
		Short: "Show recent texts of a bar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return run(cmd, http.MethodGet, barPath(args[0], "history")+"?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().Int("limit", 20, "number of entries")
	return cmd
}

func newGlobalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "global <text...>",
		Short: "Set the master bar and write it into every bar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/global/update", map[string]string{"text": strings.Join(args, " ")})
		},
	}
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "state <normal|idle|sleep>",
		Short:     "Switch every bar to a mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"normal", "idle", "sleep"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/global/state", map[string]string{"state": args[0]})
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/api/reconcile", nil)
		},
	}
}
