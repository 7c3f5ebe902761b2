package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/types"
)

func newTabsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List the tabs known to the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := root.client().Tabs(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range list {
				marker := " "
				if t.Active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\t%s\n", marker, t.ID, t.URL)
			}
			return nil
		},
	}
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var (
		tab     int
		jobFile string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate resume suggestions and a cover letter for a tab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var content string
			if jobFile != "" {
				data, err := os.ReadFile(jobFile)
				if err != nil {
					return fmt.Errorf("failed to read job file: %w", err)
				}
				content = string(data)
			}
			res, err := root.client().Generate(cmd.Context(), tab, content)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "Tab id; 0 selects the active tab")
	cmd.Flags().StringVar(&jobFile, "job-file", "", "Read the job posting text from a file instead of the tab")
	return cmd
}

func newResultCmd(root *rootOptions) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the last generation result of a tab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := root.client().Result(cmd.Context(), tab)
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no result for this tab")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "Tab id; 0 selects the active tab")
	return cmd
}

func newQuestionsCmd(root *rootOptions) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List, ask and delete application questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := root.client().Questions(cmd.Context(), tab)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.PersistentFlags().IntVar(&tab, "tab", 0, "Tab id; 0 selects the active tab")

	var requirements string
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer an application question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := root.client().Ask(cmd.Context(), tab, strings.Join(args, " "), requirements)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q.Answer)
			return nil
		},
	}
	ask.Flags().StringVar(&requirements, "requirements", "", "Additional requirements for the answer")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an answered question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.client().DeleteQuestion(cmd.Context(), tab, args[0])
		},
	}

	cmd.AddCommand(ask, rm)
	return cmd
}

func newFilesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the resume and supporting documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := root.client().Files(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range state.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\n", f.FileCategory, f.ID, f.Name, f.Base64Size)
			}
			return nil
		},
	}

	var supporting bool
	upload := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a resume, or a supporting document with --supporting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := types.CategoryResume
			if supporting {
				category = types.CategorySupporting
			}
			f, err := root.client().UploadFile(cmd.Context(), category, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s)\n", f.Name, f.ID)
			return nil
		},
	}
	upload.Flags().BoolVar(&supporting, "supporting", false, "Upload as a supporting document")

	rm := &cobra.Command{
		Use:   "rm <resume|supporting> <id>",
		Short: "Remove a stored file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.client().DeleteFile(cmd.Context(), types.FileCategory(args[0]), args[1])
		},
	}

	cmd.AddCommand(upload, rm)
	return cmd
}

func newCreditsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show the credit balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := root.client().Credits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d credits (%s)\n", b.Credits, b.Mode)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "buy <package>",
		Short: "Create a checkout session for a credit package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := root.client().Checkout(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	})
	return cmd
}

func newIdentityCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the browser identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := root.client().Identity(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSendCmd(root *rootOptions) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "send <action>",
		Short: "Send a raw coordinator message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := root.client().Send(cmd.Context(), coordinator.Message{Action: args[0], TabID: tab})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s failed: %s", args[0], resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "Tab id for tab-scoped actions")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
