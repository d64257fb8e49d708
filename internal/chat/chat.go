// Package chat forwards conversations to third-party AI providers.
//
// The service keeps no conversation state. Callers send the full message
// history on every request, optionally naming a note whose content is handed
// to the model as system context.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/logutil"
	"github.com/kuitang/notefold/internal/notes"
	"github.com/kuitang/notefold/internal/obs"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	maxMessages       = 100
	maxMessageBytes   = 64 * 1024
	maxNoteContextLen = 32 * 1024
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Reply is a single assistant turn.
type Reply struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Message  Message `json:"message"`
	Usage    Usage   `json:"usage"`
}

// Provider is a chat completion backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, model string, messages []Message) (*Reply, error)
}

// ProviderInfo describes a configured provider.
type ProviderInfo struct {
	Name         string `json:"name"`
	DefaultModel string `json:"default_model"`
}

type Request struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	NoteID   string    `json:"note_id,omitempty"`
}

// NoteReader loads a note for use as context.
type NoteReader interface {
	Get(ctx context.Context, id string) (*notes.Note, error)
}

type Service struct {
	providers map[string]Provider
}

func NewService(providers ...Provider) *Service {
	s := &Service{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			s.providers[p.Name()] = p
		}
	}
	return s
}

// Providers lists configured providers sorted by name.
func (s *Service) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, ProviderInfo{Name: p.Name(), DefaultModel: p.DefaultModel()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func validateMessages(messages []Message) error {
	if len(messages) == 0 {
		return errs.New(errs.InvalidArgument, "messages are required")
	}
	if len(messages) > maxMessages {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("at most %d messages are allowed", maxMessages))
	}
	conversational := false
	for i, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant:
			conversational = true
		case RoleSystem:
		default:
			return errs.New(errs.InvalidArgument, fmt.Sprintf("messages[%d]: role must be user, assistant or system", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("messages[%d]: content is required", i))
		}
		if len(m.Content) > maxMessageBytes {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("messages[%d]: content is too long", i))
		}
	}
	if !conversational {
		return errs.New(errs.InvalidArgument, "at least one user or assistant message is required")
	}
	return nil
}

// noteContext formats a note as a system message, truncated on a rune boundary.
func noteContext(n *notes.Note) Message {
	content := n.Content
	if len(content) > maxNoteContextLen {
		cut := maxNoteContextLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "\n[truncated]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The user is asking about the note %q (type %s", n.Title, n.Type)
	if n.Language != "" {
		fmt.Fprintf(&b, ", language %s", n.Language)
	}
	b.WriteString(").\n\n")
	b.WriteString(content)
	return Message{Role: RoleSystem, Content: b.String()}
}

// Chat sends the conversation to the requested provider and returns its reply.
func (s *Service) Chat(ctx context.Context, reader NoteReader, req Request) (*Reply, error) {
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if name == "" {
		return nil, errs.New(errs.InvalidArgument, "provider is required")
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("provider %q is not configured", req.Provider))
	}
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	messages := req.Messages
	if req.NoteID != "" {
		if reader == nil {
			return nil, errs.New(errs.InvalidArgument, "note context is unavailable")
		}
		n, err := reader.Get(ctx, req.NoteID)
		if err != nil {
			return nil, err
		}
		messages = append([]Message{noteContext(n)}, req.Messages...)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.DefaultModel()
	}

	log := obs.From(ctx)
	log.Debug("chat_request", "pkg", "chat",
		"provider", name,
		"model", model,
		"messages", len(messages),
		"note_id", req.NoteID,
		"last_message", logutil.ContentSummary(messages[len(messages)-1].Content),
	)

	reply, err := p.Complete(ctx, model, messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("chat_provider_failed", "pkg", "chat",
			"provider", name,
			"model", model,
			"error", logutil.TruncateForLog(err.Error(), 300),
		)
		return nil, errs.Wrap(errs.Unavailable, name+" is unavailable", err)
	}
	if reply.Provider == "" {
		reply.Provider = name
	}
	if reply.Model == "" {
		reply.Model = model
	}
	reply.Message.Role = RoleAssistant

	log.Info("chat_completed", "pkg", "chat",
		"provider", reply.Provider,
		"model", reply.Model,
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens,
	)
	return reply, nil
}
