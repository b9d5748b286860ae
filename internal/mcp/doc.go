// Package mcp implements the Model Context Protocol (MCP) server for composecomplete.
//
// The server exposes four tools:
//   - complete: Suggest cached users or hashtags for the fragment being typed
//   - end_session: Close a completion session
//   - cache_statuses: Feed received statuses into the candidate caches
//   - get_status: Report cache statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	composecomplete serve
//
// # Tool: complete
//
// Each call belongs to a session, which owns one autocomplete controller and
// its current result set. Omitting session_id starts a new session.
//
//	Request:
//	{
//	  "name": "complete",
//	  "arguments": {
//	    "text": "hello @mar",
//	    "prefix": "mar",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "session_id": "0b6f8f1e-...",
//	  "mode": "mention",
//	  "active": true,
//	  "suggestions": [
//	    {
//	      "primary": "Mario Rossi",
//	      "secondary": "@mario",
//	      "image": "reference",
//	      "image_url": "https://img/mario.png",
//	      "insert": "mario"
//	    }
//	  ]
//	}
//
// The character before the prefix picks the mode: '@' or '＠' for mentions,
// anything else for hashtags. Without text, the session keeps its last mode.
//
// Sessions live in a bounded LRU table (COMPOSECOMPLETE_MAX_SESSIONS). An
// evicted or ended session releases its result set.
//
// # Tool: cache_statuses
//
//	Request:
//	{
//	  "name": "cache_statuses",
//	  "arguments": {
//	    "statuses": [
//	      {
//	        "id": 1,
//	        "text": "learning #golang",
//	        "user": {"id": 7, "name": "Gopher", "screen_name": "gopher"},
//	        "mentions": [{"id": 8, "name": "Peach", "screen_name": "peach"}]
//	      }
//	    ]
//	  }
//	}
//
//	Response:
//	{
//	  "cached": true,
//	  "statuses_processed": 1,
//	  "users_cached": 2,
//	  "hashtags_cached": 1,
//	  "duration_ms": 3
//	}
//
// # Error Handling
//
// Tool failures are returned as *MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, worker)
//   - -32001: Session not found
//   - -32002: Ingestion in progress
//
// # Logging
//
// The server logs to stderr; stdout is reserved for the MCP protocol.
package mcp
