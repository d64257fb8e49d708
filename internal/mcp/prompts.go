package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const notesWorkflowPromptName = "notes_workflow"

const notesWorkflowText = "The user keeps notes in folders, with tags and favorites. " +
	"Find notes with note_search for text or note_list for folder, tag and type filters, then read them with note_view. " +
	"Create notes with note_create; pick type markdown for prose with formatting and code (with a language) for source. " +
	"Trashed notes are hidden from every tool."

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler)
	}
}

func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        notesWorkflowPromptName,
			Title:       "Notes workflow",
			Description: "How to find, read and create the user's notes.",
		},
	}
}

func promptHandler(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "How to find, read and create the user's notes.",
		Messages: []*mcp.PromptMessage{
			{
				Role:    mcp.Role("user"),
				Content: &mcp.TextContent{Text: notesWorkflowText},
			},
		},
	}, nil
}
