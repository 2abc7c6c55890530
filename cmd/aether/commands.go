package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/aether/internal/api"
	"github.com/kalambet/aether/internal/config"
	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask a question",
	Long: `Ask a question. The request is classified and routed to the best provider.

Examples:
  aether chat "explain how TLS handshakes work"
  aether chat --new "let's plan a trip to Lisbon"
  aether chat --session 3f2a... "what about day two?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		newSession, _ := cmd.Flags().GetBool("new")
		pageContext, _ := cmd.Flags().GetString("context")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), client, cmd.OutOrStdout(), api.ChatRequest{
			Message:    strings.Join(args, " "),
			Context:    pageContext,
			SessionID:  sessionID,
			NewSession: newSession,
		})
	},
}

func runChat(ctx context.Context, client *apiClient, w io.Writer, req api.ChatRequest) error {
	var result api.ChatResponse
	if err := client.call(ctx, http.MethodPost, "/v1/chat", req, &result); err != nil {
		return err
	}

	fmt.Fprintln(w, result.Text)
	meta := fmt.Sprintf("%s · %s", result.Provider, result.QueryType)
	if result.Cached {
		meta += " · cached"
	}
	if result.SessionID != "" {
		meta += " · session " + result.SessionID
	}
	printMeta(os.Stderr, "%s", meta)
	return nil
}

func init() {
	chatCmd.Flags().String("session", "", "continue a stored session")
	chatCmd.Flags().Bool("new", false, "start a new stored session")
	chatCmd.Flags().String("context", "", "page text the question refers to")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize [text]",
	Short: "Summarize text, a file or a web page",
	Long: `Summarize text, a file or a web page.

Examples:
  aether summarize "long text ..."
  aether summarize --file ./notes.md --length long
  aether summarize --url https://example.com/article --length short`,
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetString("length")
		pageURL, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")

		if _, err := orchestrator.ParseLength(length); err != nil {
			return err
		}

		req := api.SummarizeRequest{Length: length}
		switch {
		case pageURL != "":
			req.URL = pageURL
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req.Content = string(data)
		case len(args) > 0:
			req.Content = strings.Join(args, " ")
		default:
			return fmt.Errorf("one of text, --url, or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSummarize(cmd.Context(), client, cmd.OutOrStdout(), req)
	},
}

func runSummarize(ctx context.Context, client *apiClient, w io.Writer, req api.SummarizeRequest) error {
	var result api.SummarizeResponse
	if err := client.call(ctx, http.MethodPost, "/v1/summarize", req, &result); err != nil {
		return err
	}
	if result.Title != "" {
		fmt.Fprintln(w, colorize(colorBold, result.Title))
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, result.Summary)
	if result.Cached {
		printMeta(os.Stderr, "cached")
	}
	return nil
}

func init() {
	summarizeCmd.Flags().String("length", "medium", "summary length: short, medium or long")
	summarizeCmd.Flags().String("url", "", "web page or PDF to fetch and summarize")
	summarizeCmd.Flags().String("file", "", "text file to summarize")
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest <intent>",
	Short: "Suggest web search queries for a goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSuggest(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

func runSuggest(ctx context.Context, client *apiClient, w io.Writer, intent string) error {
	var result api.SuggestResponse
	if err := client.call(ctx, http.MethodPost, "/v1/suggest", api.SuggestRequest{UserIntent: intent}, &result); err != nil {
		return err
	}
	for i, s := range result.Suggestions {
		fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, fmt.Sprintf("%d.", i+1)), s)
	}
	return nil
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [pattern]",
	Short: "Remove cached entries matching a glob (default: all)",
	Long: `Remove cached entries matching a glob (default: all).

Keys are namespaced: ai:* (chat answers), page:* (page summaries),
rec:* (search suggestions).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := "*"
		if len(args) == 1 {
			pattern = args[0]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		removed, err := clearCache(cmd.Context(), client, pattern)
		if err != nil {
			return err
		}
		printSuccess("Removed %d cached entries matching %q", removed, pattern)
		return nil
	},
}

func clearCache(ctx context.Context, client *apiClient, pattern string) (int, error) {
	var result struct {
		Removed int `json:"removed"`
	}
	if err := client.call(ctx, http.MethodDelete, "/v1/cache?pattern="+url.QueryEscape(pattern), nil, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored chat sessions",
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
		return listSessions(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func listSessions(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	var sessions []storage.Session
	if err := client.call(ctx, http.MethodGet, fmt.Sprintf("/v1/sessions?limit=%d", limit), nil, &sessions); err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s  %s  %3d turns  %s\n",
			colorize(colorCyan, shortID(s.ID)),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			s.TurnCount,
			clip(title, 60),
		)
	}
	return nil
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showSession(cmd.Context(), client, cmd.OutOrStdout(), args[0], asJSON)
	},
}

func showSession(ctx context.Context, client *apiClient, w io.Writer, id string, asJSON bool) error {
	var detail api.SessionDetail
	if err := client.call(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &detail); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, detail)
	}

	fmt.Fprintln(w, colorize(colorBold, detail.Title))
	for _, t := range detail.Turns {
		label := colorize(colorGreen, "you")
		if t.Role == "assistant" {
			label = colorize(colorCyan, "aether")
			if t.Provider != "" {
				label += colorize(colorDim, " ("+t.Provider+")")
			}
		}
		fmt.Fprintf(w, "\n%s\n%s\n", label, t.Content)
	}
	return nil
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/v1/sessions/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	historyShowCmd.Flags().Bool("json", false, "print the session as JSON")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- pages ---

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manage the browsing history and its background summaries",
}

var pagesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Record a page and queue a background summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetString("length")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result map[string]string
		if err := client.call(cmd.Context(), http.MethodPost, "/v1/pages", api.PageRequest{URL: args[0], Length: length}, &result); err != nil {
			return err
		}
		printSuccess("Queued page %s", result["id"])
		return nil
	},
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listPages(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func listPages(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	var pages []storage.Page
	if err := client.call(ctx, http.MethodGet, fmt.Sprintf("/v1/pages?limit=%d", limit), nil, &pages); err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Fprintln(w, "No pages found.")
		return nil
	}
	for _, p := range pages {
		status := p.Status
		switch p.Status {
		case storage.PageStatusSummarized:
			status = colorize(colorGreen, status)
		case storage.PageStatusFailed:
			status = colorize(colorRed, status)
		}
		fmt.Fprintf(w, "%s  %-10s  %s\n", colorize(colorCyan, shortID(p.ID)), status, p.URL)
		if p.Summary != "" {
			fmt.Fprintf(w, "          %s\n", clip(p.Summary, 100))
		}
	}
	return nil
}

func init() {
	pagesAddCmd.Flags().String("length", "medium", "summary length: short, medium or long")
	pagesListCmd.Flags().Int("limit", 20, "maximum number of pages to list")
	pagesCmd.AddCommand(pagesAddCmd)
	pagesCmd.AddCommand(pagesListCmd)
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

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. API keys are secrets and must be provided\n" +
		"through environment variables or the platform secret store.\n\nValid keys: " +
		strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
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
	Use:   "unset <key>",
	Short: "Remove a stored value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
