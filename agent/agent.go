// Package agent implements the analysis worker: one process per session that
// pulls preferences and page content through the supervisor's tool link,
// extracts and scores the listing, persists the match and steers the UI.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chasse/extract"
	"github.com/hazyhaar/chasse/mcptcp"
	"github.com/hazyhaar/chasse/settings"
)

// fetchMaxLength is how much page content the agent asks for.
const fetchMaxLength = 120000

// Config configures one analysis run.
type Config struct {
	ToolAddr  string
	SessionID string
	TargetURL string
	Logger    *slog.Logger

	// RunTimeout bounds the whole run. Default: 90s.
	RunTimeout time.Duration
}

// Run executes one full analysis against the tool server: get_settings,
// fetch_content, extract, score, save_job_match, set_query_params,
// reload_page. A nil return means the match was persisted.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 90 * time.Second
	}
	if cfg.ToolAddr == "" || cfg.SessionID == "" || cfg.TargetURL == "" {
		return fmt.Errorf("agent: tool address, session id and target URL are required")
	}
	log := cfg.Logger.With("session", cfg.SessionID)

	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	client := mcptcp.NewClient(cfg.ToolAddr, cfg.SessionID)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("agent: connect tools: %w", err)
	}
	defer client.Close()

	var prefs settings.Preferences
	if err := call(ctx, client, "get_settings", nil, &prefs); err != nil {
		return fmt.Errorf("agent: get_settings: %w", err)
	}

	var page struct {
		StatusCode int    `json:"statusCode"`
		Title      string `json:"title"`
		HTML       string `json:"html"`
		Text       string `json:"text"`
	}
	fetchArgs := map[string]any{"url": cfg.TargetURL, "maxLength": fetchMaxLength}
	if err := call(ctx, client, "fetch_content", fetchArgs, &page); err != nil {
		// Transient network conditions get exactly one retry.
		log.Warn("fetch failed, retrying once", "error", err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := call(ctx, client, "fetch_content", fetchArgs, &page); err != nil {
			return fmt.Errorf("agent: fetch_content: %w", err)
		}
	}

	listing := extract.FromParts(page.HTML, page.Text, page.Title)
	result := Score(listing, &prefs)
	log.Info("listing scored",
		"url", cfg.TargetURL, "title", listing.Title, "score", result.Score)

	var match struct {
		ID string `json:"id"`
	}
	if err := call(ctx, client, "save_job_match", map[string]any{
		"url":        cfg.TargetURL,
		"title":      listing.Title,
		"company":    listing.Company,
		"location":   listing.Location,
		"matchScore": result.Score,
		"summary":    result.Summary,
		"rawExcerpt": listing.RawExcerpt,
	}, &match); err != nil {
		return fmt.Errorf("agent: save_job_match: %w", err)
	}
	log.Info("match persisted", "match_id", match.ID)

	if err := call(ctx, client, "set_query_params", map[string]any{
		"url":       cfg.TargetURL,
		"sessionId": cfg.SessionID,
	}, nil); err != nil {
		return fmt.Errorf("agent: set_query_params: %w", err)
	}
	if err := call(ctx, client, "reload_page", nil, nil); err != nil {
		return fmt.Errorf("agent: reload_page: %w", err)
	}
	return nil
}

// call invokes a tool and decodes its JSON text payload into out.
func call(ctx context.Context, c *mcptcp.Client, name string, args map[string]any, out any) error {
	res, err := c.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	if toolErr := res.GetError(); toolErr != nil {
		return toolErr
	}
	if out == nil {
		return nil
	}
	if len(res.Content) == 0 {
		return fmt.Errorf("empty tool result")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		return fmt.Errorf("unexpected tool content %T", res.Content[0])
	}
	return json.Unmarshal([]byte(text.Text), out)
}
