package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/void/internal/config"
	"github.com/kalambet/void/internal/hooks"
)

// --- history ---

type sessionSummary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
	Turns     []struct {
		Seq       int       `json:"seq"`
		Role      string    `json:"role"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"turns"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		sessions, err := listSessions(cmd.Context(), client, limit)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Fprintln(stdout, "No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(stdout, "%s  %s  %d turns\n",
				colorize(colorCyan, shortID(s.ID)),
				s.UpdatedAt.Local().Format(time.DateTime),
				s.TurnCount,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show every turn of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		var s sessionSummary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		printStatus("Session", "%s", s.ID)
		printStatus("Started", "%s", s.StartedAt.Local().Format(time.DateTime))
		for _, t := range s.Turns {
			fmt.Fprintf(stdout, "%s %s\n", colorize(colorBold, "["+t.Role+"]"), t.Text)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func listSessions(ctx context.Context, client *apiClient, limit int) ([]sessionSummary, error) {
	resp, err := client.get(ctx, fmt.Sprintf("/sessions?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var sessions []sessionSummary
	if err := decodeJSON(resp, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func countSessions(ctx context.Context, client *apiClient, limit int) (int, error) {
	sessions, err := listSessions(ctx, client, limit)
	return len(sessions), err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of sessions")
	historyShowCmd.Flags().Bool("json", false, "print the raw JSON")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
}

// --- plugins ---

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the hooks loaded from the plugin directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		reg, err := hooks.Load(cfg.Plugins.Dir, setupLogging("error"), builtinPlugins(cmd)...)
		if err != nil {
			return err
		}
		printPlugins(reg, cfg.Plugins.Dir)
		return nil
	},
}

func printPlugins(reg *hooks.Registry, dir string) {
	printStatus("Plugin dir", "%s", dir)
	for _, stage := range []hooks.Stage{hooks.StageBoot, hooks.StageInput, hooks.StageOutput} {
		names := reg.Names(stage)
		if len(names) == 0 {
			printStatus(string(stage), "none")
			continue
		}
		printStatus(string(stage), "%v", names)
	}
	for _, f := range reg.Failures() {
		printWarning("%s: %v", f.Source, f.Err)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		printStatus("File", "%s", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:               "set <key> <value>",
	Short:             "Set a configuration value",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:               "unset <key>",
	Short:             "Restore a configuration value to its default",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func completeConfigKey(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
