package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/hasura"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-blank string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return strings.TrimSpace(request.GetString(key, ""))
}

// optionalInt extracts an optional integer argument from the tool request.
func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// optionalBool extracts an optional boolean argument from the tool request.
func optionalBool(request mcp.CallToolRequest, key string) bool {
	return request.GetBool(key, false)
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// sessionError turns a session failure into a tool error with a hint the
// model can act on.
func sessionError(err error) (*mcp.CallToolResult, error) {
	var verr *metadata.ValidationError
	var terr *hasura.TransportError
	switch {
	case errors.As(err, &verr):
		if errors.Is(err, metadata.ErrRoleExists) {
			return toolError("Role %q already exists. Pick another name or remove it first.", verr.Role)
		}
		return toolError("Invalid %s: %v", verr.Field, verr.Err)
	case errors.As(err, &terr):
		msg := fmt.Sprintf("The metadata API rejected %s with status %d", terr.Op, terr.Status)
		if d, ok := terr.Detail(); ok {
			msg += fmt.Sprintf(": %s (%s)", d.Error, d.Code)
		}
		return toolError("%s", msg)
	case errors.Is(err, console.ErrNotLoaded):
		return toolError("No metadata loaded yet. Call rolekeeper_reload first.")
	default:
		return toolError("%v", err)
	}
}

// clamp constrains val to [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
