package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/stockrag/internal/config"
	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the inventory index",
		Long:  "Run a ranked semantic search over the indexed business records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().StringSliceP("type", "t", nil, "Restrict to entity types")
	cmd.Flags().StringSlice("tag", nil, "Require any of these tags")
	cmd.Flags().StringSlice("priority", nil, "Restrict to priorities (high, medium, low)")
	cmd.Flags().IntP("limit", "n", 10, "Maximum number of hits")
	cmd.Flags().Float64("min-score", 0, "Drop hits below this relevance")
	cmd.Flags().Bool("related", false, "Expand the top hits with related records")
	addOutputFlag(cmd)

	return cmd
}

func searchRequestFromFlags(cmd *cobra.Command, query string) (service.SearchRequest, error) {
	types, _ := cmd.Flags().GetStringSlice("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	priorities, _ := cmd.Flags().GetStringSlice("priority")
	limit, _ := cmd.Flags().GetInt("limit")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	related, _ := cmd.Flags().GetBool("related")

	req := service.SearchRequest{
		Query:          query,
		Limit:          limit,
		MinScore:       minScore,
		IncludeRelated: related,
		Filters:        service.SearchFilters{Tags: tags},
	}
	for _, name := range types {
		t, err := domain.ParseEntityType(name)
		if err != nil {
			return req, err
		}
		req.Filters.EntityTypes = append(req.Filters.EntityTypes, t)
	}
	for _, p := range priorities {
		req.Filters.Priority = append(req.Filters.Priority, domain.Priority(strings.ToLower(p)))
	}
	return req, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := searchRequestFromFlags(cmd, strings.Join(args, " "))
	if err != nil {
		return err
	}

	return withApp(cmd, appOptions{}, func(ctx context.Context, app *App) error {
		if err := app.waitEmbeddings(ctx); err != nil {
			return err
		}
		if err := populateEphemeralIndex(ctx, app); err != nil {
			return err
		}

		resp, err := app.Retrieval.Search(ctx, req)
		if err != nil {
			return err
		}
		if wantsJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printHits(cmd.OutOrStdout(), resp)
		return nil
	})
}

// populateEphemeralIndex fills the in-memory backend, which starts empty in
// every process.
func populateEphemeralIndex(ctx context.Context, app *App) error {
	if app.Config.VectorBackend != config.VectorBackendMemory {
		return nil
	}
	if _, err := app.Sync.FullResync(ctx); err != nil {
		return fmt.Errorf("populate in-memory index: %w", err)
	}
	return nil
}

func printHits(w io.Writer, resp *service.SearchResponse) {
	if len(resp.Hits) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	fmt.Fprintf(w, "%d of %d candidates (%dms)\n\n", len(resp.Hits), resp.Total, resp.TookMS)
	for i, h := range resp.Hits {
		fmt.Fprintf(w, "%2d. [%.2f] %s %s  %s\n", i+1, h.Relevance, h.EntityType.Singular(), h.EntityID, h.Title)
		if h.Summary != "" {
			fmt.Fprintf(w, "    %s\n", h.Summary)
		}
	}
	if len(resp.Related) > 0 {
		fmt.Fprintln(w, "\nRelated:")
		for _, h := range resp.Related {
			fmt.Fprintf(w, "    %s %s  %s\n", h.EntityType.Singular(), h.EntityID, h.Title)
		}
	}
}

func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the inventory assistant",
		Long:  "Ask questions about the inventory interactively, or send a single message with --message",
		RunE:  runChat,
	}

	cmd.Flags().StringP("message", "m", "", "Send one message and exit")
	cmd.Flags().String("session", "", "Session ID (defaults to a new session)")
	cmd.Flags().String("user", "cli", "User ID recorded on the session")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	message, _ := cmd.Flags().GetString("message")
	sessionID, _ := cmd.Flags().GetString("session")
	userID, _ := cmd.Flags().GetString("user")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return withApp(cmd, appOptions{withChat: true}, func(ctx context.Context, app *App) error {
		if err := app.waitEmbeddings(ctx); err != nil {
			return err
		}
		if err := app.waitGenerator(ctx); err != nil {
			return err
		}
		if err := populateEphemeralIndex(ctx, app); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ask := func(text string) error {
			resp, err := app.Chat.HandleMessage(ctx, service.ChatRequest{SessionID: sessionID, UserID: userID, Message: text})
			if err != nil {
				var chatErr *service.ChatError
				if errors.As(err, &chatErr) {
					fmt.Fprintln(out, chatErr.Message)
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "%s\n\n", resp.Reply)
			return nil
		}

		if message != "" {
			return ask(message)
		}

		fmt.Fprintf(out, "Session %s. Empty line or Ctrl-D to quit.\n", sessionID)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				break
			}
			if err := ask(line); err != nil {
				return err
			}
		}
		return scanner.Err()
	})
}
