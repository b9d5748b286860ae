package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// completeTool returns the tool definition for complete
func completeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "complete",
		Description: "Suggest cached users after @ or cached hashtags after # for the text being composed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session returned by an earlier call; omit to start a new session",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Full text of the compose box, used to tell @mentions from #hashtags",
				},
				"caret": map[string]interface{}{
					"type":        "integer",
					"description": "Caret position in text, in characters (defaults to the end of text)",
					"minimum":     0,
				},
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Fragment typed after the trigger character, without the trigger",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions to return (1-100)",
					"default":     defaultLimit,
					"minimum":     1,
					"maximum":     maxSuggestions,
				},
			},
			Required: []string{"prefix"},
		},
	}
}

// endSessionTool returns the tool definition for end_session
func endSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "end_session",
		Description: "Close a completion session and release its results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to close",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// cacheStatusesTool returns the tool definition for cache_statuses
func cacheStatusesTool() mcp.Tool {
	status := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":       map[string]interface{}{"type": "integer"},
			"text":     map[string]interface{}{"type": "string"},
			"user":     userSchema(),
			"mentions": map[string]interface{}{"type": "array", "items": userSchema()},
			"hashtags": map[string]interface{}{
				"type":        "array",
				"description": "Tags without '#'; parsed from text when omitted",
				"items":       map[string]interface{}{"type": "string"},
			},
		},
		"required": []string{"id", "user"},
	}

	return mcp.Tool{
		Name:        "cache_statuses",
		Description: "Remember the authors, mentioned users and hashtags of received statuses for later completion",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"statuses": map[string]interface{}{
					"type":        "array",
					"description": "Received statuses",
					"items":       status,
				},
			},
			Required: []string{"statuses"},
		},
	}
}

func userSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                map[string]interface{}{"type": "integer"},
			"name":              map[string]interface{}{"type": "string"},
			"screen_name":       map[string]interface{}{"type": "string"},
			"profile_image_url": map[string]interface{}{"type": "string"},
		},
		"required": []string{"id"},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report candidate cache statistics and open sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
