package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/one-click-apply/internal/client"
)

// defaultServer is the daemon address used by client commands.
const defaultServer = "http://127.0.0.1:8765"

type rootOptions struct {
	configPath string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "oneclick",
		Short:         "One-click job application assistant",
		Long:          "oneclick coordinates tab-scoped resume suggestions, cover letters and application answers for job postings open in the browser.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a JSON or TOML config file")
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("ONECLICK_SERVER", defaultServer), "Daemon base URL for client commands")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newTabsCmd(opts),
		newGenerateCmd(opts),
		newResultCmd(opts),
		newQuestionsCmd(opts),
		newFilesCmd(opts),
		newCreditsCmd(opts),
		newIdentityCmd(opts),
		newSendCmd(opts),
	)
	return cmd
}

// client returns a daemon client. Generation waits on the backend, so the timeout is long.
func (o *rootOptions) client() *client.Client {
	return client.New(o.server, &http.Client{Timeout: 5 * time.Minute})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
