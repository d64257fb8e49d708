package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/obs"
	"github.com/kuitang/notefold/internal/search"
)

type servicesKey struct{}

type services struct {
	notes  *notes.Service
	search *search.Service
}

// ContextWithServices binds the caller's services for tool handlers.
func ContextWithServices(ctx context.Context, notesSvc *notes.Service, searchSvc *search.Service) context.Context {
	return context.WithValue(ctx, servicesKey{}, services{notes: notesSvc, search: searchSvc})
}

func requireNotes(ctx context.Context) (*notes.Service, error) {
	svc, _ := ctx.Value(servicesKey{}).(services)
	if svc.notes == nil {
		return nil, errs.New(errs.FailedPrecondition, "notes tools are unavailable without an authenticated user")
	}
	return svc.notes, nil
}

func requireSearch(ctx context.Context) (*search.Service, error) {
	svc, _ := ctx.Value(servicesKey{}).(services)
	if svc.search == nil {
		return nil, errs.New(errs.FailedPrecondition, "search is unavailable without an authenticated user")
	}
	return svc.search, nil
}

// Handler dispatches tool calls. Services come from the call context.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) createToolHandler(name string) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		if err != nil {
			if errs.CodeOf(err) == errs.Internal {
				obs.From(ctx).Error("mcp_tool_failed", "pkg", "mcp", "tool", name, "error", err)
			}
			return newToolResultError(err), nil, nil
		}
		return result, nil, nil
	}
}

// HandleToolCall runs one tool. Failures are returned as coded errors.
func (h *Handler) HandleToolCall(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case toolNoteList:
		return h.handleNoteList(ctx, args)
	case toolNoteView:
		return h.handleNoteView(ctx, args)
	case toolNoteCreate:
		return h.handleNoteCreate(ctx, args)
	case toolNoteSearch:
		return h.handleNoteSearch(ctx, args)
	default:
		return nil, errs.New(errs.NotFound, fmt.Sprintf("unknown tool: %s", name))
	}
}

// decodeToolArgs maps loosely typed arguments onto a struct, rejecting
// unknown fields.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments are not valid JSON", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

func marshalAny(value any) []byte {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return data
}

func newToolResultJSON(value any) *mcp.CallToolResult {
	data := marshalAny(value)
	if data == nil {
		return newToolResultError(errs.New(errs.Internal, "failed to encode result"))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{Code: string(errs.CodeOf(err)), Message: errs.MessageOf(err)}
	data := marshalAny(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

type noteListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	Tags       []string  `json:"tags"`
	FolderID   *string   `json:"folder_id"`
	IsFavorite bool      `json:"is_favorite"`
	Preview    string    `json:"preview"`
	TotalLines int       `json:"total_lines"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		FolderID string `json:"folder_id"`
		Tag      string `json:"tag"`
		Type     string `json:"type"`
		Favorite *bool  `json:"favorite"`
		Limit    int    `json:"limit"`
		Offset   int    `json:"offset"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	page, err := svc.List(ctx, notes.ListNotesParams{
		FolderID: in.FolderID,
		Tag:      in.Tag,
		Type:     notes.NoteType(in.Type),
		Favorite: in.Favorite,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return nil, err
	}

	items := make([]noteListItem, 0, len(page.Notes))
	for _, n := range page.Notes {
		items = append(items, noteListItem{
			ID:         n.ID,
			Title:      n.Title,
			Type:       string(n.Type),
			Tags:       n.Tags,
			FolderID:   n.FolderID,
			IsFavorite: n.IsFavorite,
			Preview:    notes.ContentPreview(n.Content, 2),
			TotalLines: notes.CountLines(n.Content),
			UpdatedAt:  n.UpdatedAt,
		})
	}
	return newToolResultJSON(map[string]any{
		"notes":       items,
		"total_count": page.TotalCount,
		"limit":       page.Limit,
		"offset":      page.Offset,
	}), nil
}

func (h *Handler) handleNoteView(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		ID        string `json:"id"`
		LineRange []int  `json:"line_range"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, errs.New(errs.InvalidArgument, "id is required")
	}
	start, end := 0, -1
	switch len(in.LineRange) {
	case 0:
	case 2:
		start, end = in.LineRange[0], in.LineRange[1]
	default:
		return nil, errs.New(errs.InvalidArgument, "line_range must be [start, end]")
	}

	n, err := svc.Get(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	formatted, total := notes.FormatWithLineNumbers(n.Content, start, end)
	out := map[string]any{
		"id":            n.ID,
		"title":         n.Title,
		"type":          n.Type,
		"language":      n.Language,
		"folder_id":     n.FolderID,
		"tags":          n.Tags,
		"is_trashed":    n.IsTrashed,
		"content":       formatted,
		"total_lines":   total,
		"created_at":    n.CreatedAt,
		"updated_at":    n.UpdatedAt,
		"revision_hash": n.RevisionHash,
	}
	if start > 0 || end > 0 {
		out["line_range"] = [2]int{start, end}
	}
	return newToolResultJSON(out), nil
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Type     string   `json:"type"`
		Language string   `json:"language"`
		FolderID string   `json:"folder_id"`
		Tags     []string `json:"tags"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	n, err := svc.Create(ctx, notes.CreateNoteParams{
		Title:    in.Title,
		Content:  in.Content,
		Type:     notes.NoteType(in.Type),
		Language: in.Language,
		FolderID: in.FolderID,
		Tags:     in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{
		"id":            n.ID,
		"title":         n.Title,
		"type":          n.Type,
		"tags":          n.Tags,
		"total_lines":   notes.CountLines(n.Content),
		"created_at":    n.CreatedAt,
		"revision_hash": n.RevisionHash,
	}), nil
}

func (h *Handler) handleNoteSearch(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := requireSearch(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	res, err := svc.Search(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{
		"query": res.Query,
		"notes": res.Notes,
	}), nil
}
