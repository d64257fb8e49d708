package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

const (
	toolNoteList   = "note_list"
	toolNoteView   = "note_view"
	toolNoteCreate = "note_create"
	toolNoteSearch = "note_search"
)

// ToolDefinitions returns the note tools served on /mcp.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        toolNoteList,
			Description: "List notes with title, type, tags, a short preview (first 2 lines of content) and total line count, most recently updated first. Filter by folder_id (includes subfolders), tag, type (text, markdown, code) or favorite. Accepts optional limit (default 50, max 1000) and offset for pagination. Trashed notes are excluded. Use note_view to read a complete note.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"folder_id": map[string]any{"type": "string", "description": "Only notes in this folder or its descendants"},
					"tag":       map[string]any{"type": "string", "description": "Only notes carrying this tag"},
					"type": map[string]any{
						"type":        "string",
						"description": "Only notes of this type",
						"enum":        []string{"text", "markdown", "code"},
					},
					"favorite": map[string]any{"type": "boolean", "description": "Only favorites (true) or non-favorites (false)"},
					"limit":    map[string]any{"type": "integer", "description": "Maximum notes to return (default 50, max 1000)"},
					"offset":   map[string]any{"type": "integer", "description": "Number of notes to skip"},
				},
			},
		},
		{
			Name:        toolNoteView,
			Description: "Read a note's full content with line numbers (tab-separated, 1-indexed). Optionally pass line_range as [start, end] (1-indexed, inclusive; end=-1 means end of note) to view part of it. The response includes total_lines, tags, folder_id and revision_hash.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"type": "string", "description": "The note id"},
					"line_range": map[string]any{
						"type":        "array",
						"description": "Optional [start, end] line range (1-indexed, inclusive). end=-1 means end of note.",
						"items":       map[string]any{"type": "integer"},
						"minItems":    2,
						"maxItems":    2,
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        toolNoteCreate,
			Description: "Create a note. title is required; content, type (text, markdown or code; default text), language (for code), folder_id and tags are optional. Returns the new id, title, line count, creation time and revision_hash, not the content.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string", "description": "Note title (required, at most 500 characters)"},
					"content": map[string]any{"type": "string", "description": "Note body"},
					"type": map[string]any{
						"type": "string",
						"enum": []string{"text", "markdown", "code"},
					},
					"language":  map[string]any{"type": "string", "description": "Programming language of a code note"},
					"folder_id": map[string]any{"type": "string", "description": "Folder to create the note in"},
					"tags": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        toolNoteSearch,
			Description: "Search note titles and content. The query is matched literally and case-insensitively; regex characters have no special meaning. Returns matching notes with a one-line snippet around the first match. Use note_view to read full content.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Text to look for"},
					"limit": map[string]any{"type": "integer", "description": "Maximum results (default 20, max 100)"},
				},
				"required": []string{"query"},
			},
		},
	}
}
