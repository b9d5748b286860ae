package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/composecomplete/internal/autocomplete"
	"github.com/dshills/composecomplete/internal/config"
	"github.com/dshills/composecomplete/internal/ingest"
	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeSessionNotFound  = -32001 // Unknown or evicted session
	ErrorCodeIngestInProgress = -32002 // Another ingestion is already running
)

const (
	defaultLimit = 20
)

// suggestion is one row of a complete response
type suggestion struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Image     string `json:"image"`
	ImageURL  string `json:"image_url,omitempty"`
	Insert    string `json:"insert"`
}

// jsonImages hands profile image references to the suggestion being built
type jsonImages struct{}

func (jsonImages) DisplayImage(target any, ref string) {
	if s, ok := target.(*suggestion); ok {
		s.ImageURL = ref
	}
}

func (s *Server) newController() *autocomplete.Controller {
	return autocomplete.New(s.router, autocomplete.Options{
		Preferences: s.prefs,
		Images:      jsonImages{},
		Worker:      s.worker,
		Locale:      s.config.Locale,
		Logger:      s.logger,
	})
}

// handleComplete handles the complete tool invocation
func (s *Server) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	prefix, ok := args["prefix"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "prefix parameter is required", map[string]interface{}{
			"param":  "prefix",
			"reason": "missing or not a string",
		})
	}

	limit := getIntDefault(args, "limit", defaultLimit)
	if limit < 1 || limit > maxSuggestions {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSuggestions), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var sess *session
	if id := getStringDefault(args, "session_id", ""); id != "" {
		sess, ok = s.sessions.get(id)
		if !ok {
			return nil, newMCPError(ErrorCodeSessionNotFound, "session not found", map[string]interface{}{
				"session_id": id,
			})
		}
	} else {
		sess = s.sessions.create(s.newController())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	c := sess.controller

	if text, ok := args["text"].(string); ok {
		caret := getIntDefault(args, "caret", utf8.RuneCountInString(text))
		c.SetTextSource(autocomplete.StaticText{Body: text, Caret: caret})
	} else {
		c.SetTextSource(nil)
	}

	if err := c.Filter(ctx, prefix); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "completion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	suggestions := make([]suggestion, 0, min(c.Len(), limit))
	for row := 0; row < c.Len() && len(suggestions) < limit; row++ {
		var sg suggestion
		fields, err := c.BindView(&sg, row)
		if errors.Is(err, types.ErrInactive) {
			// Evicted mid-read; the result set is gone
			break
		}
		if err != nil {
			s.logger.Printf("complete: skipping %v", err)
			continue
		}
		insert, err := c.Stringify(row)
		if err != nil {
			continue
		}
		sg.Primary = fields.Primary
		sg.Secondary = fields.Secondary
		sg.Image = string(fields.Image)
		sg.Insert = insert
		suggestions = append(suggestions, sg)
	}

	response := map[string]interface{}{
		"session_id":  sess.id,
		"mode":        c.Mode().String(),
		"active":      c.IsActive(),
		"suggestions": suggestions,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEndSession handles the end_session tool invocation
func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["session_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	if !s.sessions.end(id) {
		return nil, newMCPError(ErrorCodeSessionNotFound, "session not found", map[string]interface{}{
			"session_id": id,
		})
	}

	response := map[string]interface{}{
		"session_id": id,
		"ended":      true,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStatuses handles the cache_statuses tool invocation
func (s *Server) handleCacheStatuses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["statuses"].([]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "statuses parameter is required", map[string]interface{}{
			"param":  "statuses",
			"reason": "missing or not an array",
		})
	}

	statuses, err := decodeStatuses(raw)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid statuses", map[string]interface{}{
			"param":  "statuses",
			"reason": err.Error(),
		})
	}

	stats, err := s.ingester.IngestStatuses(ctx, statuses, &ingest.Config{Workers: s.config.IngestWorkers})
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "ingestion already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"cached":             true,
		"statuses_processed": stats.StatusesProcessed,
		"statuses_failed":    stats.StatusesFailed,
		"users_cached":       stats.UsersCached,
		"hashtags_cached":    stats.HashtagsCached,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"cache": map[string]interface{}{
			"users_count":       status.UsersCount,
			"hashtags_count":    status.HashtagsCount,
			"distinct_hashtags": status.DistinctHashtags,
			"size_mb":           fmt.Sprintf("%.2f", status.SizeMB),
			"size":              humanize.IBytes(uint64(status.SizeBytes)),
			"schema_version":    status.SchemaVersion,
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"users_cached":        status.Health.UsersCached,
			"hashtags_cached":     status.Health.HashtagsCached,
		},
		"sessions":              s.sessions.len(),
		"display_profile_image": s.prefs.Bool(config.PreferenceDisplayProfileImage, true),
		"locale":                s.config.Locale,
		"sqlite_driver":         storage.BuildMode,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// decodeStatuses converts the loosely typed tool argument into statuses
func decodeStatuses(raw []interface{}) ([]ingest.Status, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var statuses []ingest.Status
	if err := json.Unmarshal(data, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
