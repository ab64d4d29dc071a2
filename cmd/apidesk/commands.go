package main

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/apidesk/cmd/apidesk/config"
	"github.com/loykin/apidesk/internal/api"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/ledger"
	"github.com/loykin/apidesk/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Restore the workspace and serve it over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withWorkspace(ctx, func(doc *config.ConfigDoc, ws *workspace.Workspace) error {
			opts, err := doc.API()
			if err != nil {
				return err
			}
			if _, err := ws.Start(ctx); err != nil {
				return err
			}
			return api.NewServer(ws, opts).Run(ctx, doc.Addr())
		})
	},
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List open tabs in display order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			if err := ws.Restore(cmd.Context()); err != nil {
				return err
			}
			printTabs(cmd.OutOrStdout(), ws.Ledger.Snapshot())
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open METHOD PATH",
	Short: "Open (or switch to) the tab for an endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			if err := ws.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := ws.Sync.Select(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			view := ws.Sync.View()
			if view.Document == nil {
				return fmt.Errorf("tab %s:%s was not opened", args[0], args[1])
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s %s\n", view.Key, view.Document.Method, view.Document.Request.URL)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close KEY...",
	Short: "Close tabs by key and delete their documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			if err := ws.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := ws.Sync.CloseTabs(cmd.Context(), args); err != nil {
				return err
			}
			printTabs(cmd.OutOrStdout(), ws.Ledger.Snapshot())
			return nil
		})
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder KEY INDEX",
	Short: "Move a tab to a new position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[1], err)
		}
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			if err := ws.Restore(cmd.Context()); err != nil {
				return err
			}
			if !ws.Ledger.Reorder(args[0], index) {
				return fmt.Errorf("tab %q is not open", args[0])
			}
			printTabs(cmd.OutOrStdout(), ws.Ledger.Snapshot())
			return nil
		})
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Resolve and print environment variables (values masked when sensitive)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			status, err := ws.Start(cmd.Context())
			if err != nil {
				return err
			}
			ws.Env.Wait()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "# source: %s\n", status)
			if up := ws.Env.Uptime(); up != "" {
				_, _ = fmt.Fprintf(out, "# remote uptime: %s\n", up)
			}
			printVars(out, envvars.NonEmpty(ws.Env.Vars().Vars()))
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Close every tab and delete all documents and uploaded files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWorkspace(cmd.Context(), func(_ *config.ConfigDoc, ws *workspace.Workspace) error {
			if err := ws.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := ws.ClearAll(cmd.Context()); err != nil {
				return err
			}
			common.GetLogger().Info("workspace cleared")
			return nil
		})
	},
}

func printTabs(w io.Writer, st ledger.State) {
	if len(st.Entries) == 0 {
		_, _ = fmt.Fprintln(w, "no open tabs")
		return
	}
	for _, e := range st.Entries {
		marker := " "
		if e.TabKey == st.Active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %2d  %-40s %s\n", marker, e.Order, e.TabKey, e.Name)
	}
}

func printVars(w io.Writer, vars []envvars.Resolved) {
	for _, v := range vars {
		flag := ""
		switch {
		case !v.Editable:
			flag = " (static)"
		case v.Local:
			flag = " (local)"
		}
		_, _ = fmt.Fprintf(w, "%s=%s%s\n", v.Name, common.MaskVariable(v.Name, v.StringValue()), flag)
	}
}

