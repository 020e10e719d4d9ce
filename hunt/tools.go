package hunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chasse/extract"
	"github.com/hazyhaar/chasse/hunt/internal/store"
	"github.com/hazyhaar/chasse/kit"
	"github.com/hazyhaar/chasse/settings"
)

// fetch_content length limits: callers get defaultFetchLength bytes unless
// they ask for more, capped at maxFetchLength.
const (
	defaultFetchLength = 60000
	maxFetchLength     = 120000

	// textExcerptLen caps the collapsed plain-text companion of the raw HTML.
	textExcerptLen = 2000
)

const defaultListLimit = 50

// toolServer builds the MCP server the worker talks to. Every tool resolves
// the session from the connection context; calls without a live session fail
// with ErrUnknownSession.
func (svc *Service) toolServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "chasse-tools", Version: "1.0.0"}, nil)
	svc.registerSetQueryParams(srv)
	svc.registerFetchContent(srv)
	svc.registerReloadPage(srv)
	svc.registerGetSettings(srv)
	svc.registerSetSettings(srv)
	svc.registerSaveJobMatch(srv)
	svc.registerListJobMatches(srv)
	svc.registerClearJobMatches(srv)
	return srv
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeArgs unmarshals tool arguments into T. Empty arguments decode to the
// zero value so no-argument tools work without a payload.
func decodeArgs[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if len(r.Params.Arguments) > 0 {
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}

// sessionEndpoint wraps a handler with session resolution, idle-clock reset
// and per-session call serialization.
func (svc *Service) sessionEndpoint(fn func(ctx context.Context, s *session, r any) (any, error)) kit.Endpoint {
	return func(ctx context.Context, r any) (any, error) {
		s, err := svc.touch(kit.GetSessionID(ctx))
		if err != nil {
			return nil, err
		}
		s.callMu.Lock()
		defer s.callMu.Unlock()
		return fn(ctx, s, r)
	}
}

type ackResponse struct {
	OK bool `json:"ok"`
}

// --- UI steering ---

func (svc *Service) registerSetQueryParams(srv *mcp.Server) {
	type req struct {
		URL       string `json:"url"`
		SessionID string `json:"sessionId,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "set_query_params",
		Description: "Apply a URL as the active query in the observing UI",
		InputSchema: inputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "URL to apply"},
			"sessionId": map[string]any{"type": "string", "description": "Session to attribute the query to"},
		}, []string{"url"}),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, s *session, r any) (any, error) {
		p := r.(*req)
		if err := svc.urlValidator(p.URL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		sessionID := p.SessionID
		if sessionID == "" {
			sessionID = s.ID
		}
		svc.bus.Publish(Event{Type: EventApplyQuery, SessionID: sessionID, URL: p.URL})
		return ackResponse{OK: true}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[req])
}

func (svc *Service) registerReloadPage(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reload_page",
		Description: "Ask observing UIs to reload",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, s *session, _ any) (any, error) {
		svc.bus.Publish(Event{Type: EventReload, SessionID: s.ID})
		return ackResponse{OK: true}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[struct{}])
}

// --- Content ---

func (svc *Service) registerFetchContent(srv *mcp.Server) {
	type req struct {
		URL       string `json:"url"`
		MaxLength int    `json:"maxLength,omitempty"`
	}
	type resp struct {
		URL        string `json:"url"`
		StatusCode int    `json:"statusCode"`
		Title      string `json:"title,omitempty"`
		HTML       string `json:"html"`
		Text       string `json:"text"`
	}

	tool := &mcp.Tool{
		Name:        "fetch_content",
		Description: "Fetch a listing page and return its raw content",
		InputSchema: inputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "Page URL"},
			"maxLength": map[string]any{"type": "integer", "description": "Max content bytes (cap 120000)"},
		}, []string{"url"}),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, s *session, r any) (any, error) {
		p := r.(*req)
		maxLength := p.MaxLength
		if maxLength <= 0 {
			maxLength = defaultFetchLength
		}
		if maxLength > maxFetchLength {
			maxLength = maxFetchLength
		}
		res, err := svc.fetcher.Fetch(ctx, p.URL, maxLength)
		if err != nil {
			status := 0
			if res != nil {
				status = res.StatusCode
			}
			return nil, fmt.Errorf("%w: %v (status %d)", ErrFetchFailed, err, status)
		}
		return resp{
			URL:        p.URL,
			StatusCode: res.StatusCode,
			Title:      extract.Title(res.Body),
			HTML:       res.Body,
			Text:       extract.TextExcerpt(res.Body, textExcerptLen),
		}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[req])
}

// --- Settings ---

func (svc *Service) registerGetSettings(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "get_settings",
		Description: "Read the current search preferences snapshot",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, _ *session, _ any) (any, error) {
		return svc.GetSettings()
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[struct{}])
}

func (svc *Service) registerSetSettings(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "set_settings",
		Description: "Validate and persist a full search preferences payload",
		InputSchema: inputSchema(map[string]any{
			"preferredTitles":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"locations":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"keywords":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"remoteOnly":       map[string]any{"type": "boolean"},
			"salaryMin":        map[string]any{"type": "integer"},
			"salaryMax":        map[string]any{"type": "integer"},
			"companyBlacklist": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, nil),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, _ *session, r any) (any, error) {
		return svc.UpdateSettings(r.(*settings.Preferences))
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[settings.Preferences])
}

// --- Matches ---

func (svc *Service) registerSaveJobMatch(srv *mcp.Server) {
	type req struct {
		URL        string  `json:"url"`
		Title      string  `json:"title,omitempty"`
		Company    string  `json:"company,omitempty"`
		Location   string  `json:"location,omitempty"`
		MatchScore float64 `json:"matchScore"`
		Summary    string  `json:"summary"`
		RawExcerpt string  `json:"rawExcerpt,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "save_job_match",
		Description: "Persist a scored job match and return it with its generated id",
		InputSchema: inputSchema(map[string]any{
			"url":        map[string]any{"type": "string", "description": "Listing URL"},
			"title":      map[string]any{"type": "string"},
			"company":    map[string]any{"type": "string"},
			"location":   map[string]any{"type": "string"},
			"matchScore": map[string]any{"type": "number", "description": "Score in [0, 100]"},
			"summary":    map[string]any{"type": "string"},
			"rawExcerpt": map[string]any{"type": "string"},
		}, []string{"url", "matchScore", "summary"}),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, s *session, r any) (any, error) {
		p := r.(*req)
		match, err := svc.store.InsertMatch(ctx, &store.MatchInput{
			SessionID:  s.ID,
			URL:        p.URL,
			Title:      p.Title,
			Company:    p.Company,
			Location:   p.Location,
			MatchScore: p.MatchScore,
			Summary:    p.Summary,
			RawExcerpt: p.RawExcerpt,
		})
		if err != nil {
			if errors.Is(err, store.ErrScoreRange) || errors.Is(err, store.ErrMissingURL) {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
		svc.mu.Lock()
		s.MatchID = match.ID
		svc.mu.Unlock()
		return match, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[req])
}

func (svc *Service) registerListJobMatches(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "list_job_matches",
		Description: "List persisted matches, most recent first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results"},
		}, nil),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, _ *session, r any) (any, error) {
		p := r.(*req)
		limit := p.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		return svc.ListMatches(ctx, limit)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[req])
}

func (svc *Service) registerClearJobMatches(srv *mcp.Server) {
	type resp struct {
		Removed int64 `json:"removed"`
	}

	tool := &mcp.Tool{
		Name:        "clear_job_matches",
		Description: "Remove all persisted matches and return the count removed",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := svc.sessionEndpoint(func(ctx context.Context, _ *session, _ any) (any, error) {
		n, err := svc.ClearMatches(ctx)
		if err != nil {
			return nil, err
		}
		return resp{Removed: n}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs[struct{}])
}
