package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/notes"
)

type noteMap map[string]*notes.Note

func (m noteMap) Get(_ context.Context, id string) (*notes.Note, error) {
	n, ok := m[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "note not found")
	}
	return n, nil
}

func userMsg(s string) Message { return Message{Role: RoleUser, Content: s} }

func TestProviders_SortedAndConfigured(t *testing.T) {
	svc := NewService(
		&FakeProvider{ProviderName: "openai", Model: "gpt-test"},
		nil,
		&FakeProvider{ProviderName: "gemini", Model: "gemini-test"},
	)
	require.Equal(t, []ProviderInfo{
		{Name: "gemini", DefaultModel: "gemini-test"},
		{Name: "openai", DefaultModel: "gpt-test"},
	}, svc.Providers())

	require.Empty(t, NewService().Providers())
}

func TestChat_DefaultModelAndReply(t *testing.T) {
	fake := &FakeProvider{ProviderName: ProviderOpenAI, Model: "gpt-test"}
	svc := NewService(fake)

	reply, err := svc.Chat(context.Background(), nil, Request{
		Provider: " OpenAI ",
		Messages: []Message{userMsg("hello")},
	})
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, reply.Provider)
	require.Equal(t, "gpt-test", reply.Model)
	require.Equal(t, RoleAssistant, reply.Message.Role)
	require.Equal(t, "echo: hello", reply.Message.Content)

	reply, err = svc.Chat(context.Background(), nil, Request{
		Provider: ProviderOpenAI,
		Model:    "gpt-other",
		Messages: []Message{userMsg("again")},
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-other", reply.Model)
}

func TestChat_Validation(t *testing.T) {
	svc := NewService(&FakeProvider{ProviderName: ProviderOpenAI})
	ctx := context.Background()

	cases := []Request{
		{Provider: "", Messages: []Message{userMsg("x")}},
		{Provider: "gemini", Messages: []Message{userMsg("x")}},
		{Provider: "openai"},
		{Provider: "openai", Messages: []Message{{Role: "tool", Content: "x"}}},
		{Provider: "openai", Messages: []Message{{Role: RoleUser, Content: "   "}}},
		{Provider: "openai", Messages: []Message{{Role: RoleSystem, Content: "only system"}}},
		{Provider: "openai", Messages: []Message{userMsg(strings.Repeat("a", maxMessageBytes+1))}},
		{Provider: "openai", Messages: make([]Message, maxMessages+1)},
	}
	for i, req := range cases {
		_, err := svc.Chat(ctx, nil, req)
		require.Truef(t, errs.Is(err, errs.InvalidArgument), "case %d: got %v", i, err)
	}
}

func TestChat_NoteContext(t *testing.T) {
	fake := &FakeProvider{ProviderName: ProviderOpenAI}
	svc := NewService(fake)
	reader := noteMap{
		"n1": {ID: "n1", Title: "Recipe", Content: "flour, water", Type: notes.TypeCode, Language: "go"},
	}

	_, err := svc.Chat(context.Background(), reader, Request{
		Provider: ProviderOpenAI,
		NoteID:   "n1",
		Messages: []Message{userMsg("summarize")},
	})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	require.Equal(t, RoleSystem, calls[0][0].Role)
	require.Contains(t, calls[0][0].Content, `"Recipe"`)
	require.Contains(t, calls[0][0].Content, "language go")
	require.Contains(t, calls[0][0].Content, "flour, water")

	_, err = svc.Chat(context.Background(), reader, Request{
		Provider: ProviderOpenAI,
		NoteID:   "missing",
		Messages: []Message{userMsg("summarize")},
	})
	require.True(t, errs.Is(err, errs.NotFound))
	require.Len(t, fake.Calls(), 1)
}

func TestChat_ProviderFailureIsUnavailable(t *testing.T) {
	cause := errors.New("upstream 500 api_key=sk-live-secret")
	svc := NewService(&FakeProvider{ProviderName: ProviderGemini, Err: cause})

	_, err := svc.Chat(context.Background(), nil, Request{
		Provider: ProviderGemini,
		Messages: []Message{userMsg("hi")},
	})
	require.True(t, errs.Is(err, errs.Unavailable))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "gemini is unavailable", errs.MessageOf(err))
}

func testNoteContext_Properties(t *rapid.T) {
	content := rapid.StringN(0, 40000, -1).Draw(t, "content")
	title := rapid.String().Draw(t, "title")

	msg := noteContext(&notes.Note{Title: title, Content: content, Type: notes.TypeText})
	if msg.Role != RoleSystem {
		t.Fatalf("role = %q", msg.Role)
	}
	if !strings.HasPrefix(msg.Content, "The user is asking about the note") {
		t.Fatalf("missing header: %q", msg.Content[:min(len(msg.Content), 60)])
	}
	if len(content) <= maxNoteContextLen && !strings.HasSuffix(msg.Content, content) {
		t.Fatal("short content must be attached whole")
	}
	if len(content) > maxNoteContextLen {
		if !strings.HasSuffix(msg.Content, "\n[truncated]") {
			t.Fatal("long content must be marked truncated")
		}
		if len(msg.Content) > maxNoteContextLen+len(title)*6+200 {
			t.Fatalf("context too long: %d", len(msg.Content))
		}
	}
	if strings.ToValidUTF8(content, "") == content && strings.ToValidUTF8(msg.Content, "") != msg.Content {
		t.Fatal("truncation split a rune")
	}
}

func TestNoteContext_Properties(t *testing.T) {
	rapid.Check(t, testNoteContext_Properties)
}

func FuzzNoteContext_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testNoteContext_Properties))
}

func TestOpenAIProvider_ChatCompletions(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-test-2026",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hi there", "refusal": ""}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", DefaultModel: "gpt-test"})
	require.Equal(t, ProviderOpenAI, p.Name())
	require.Equal(t, "gpt-test", p.DefaultModel())

	reply, err := p.Complete(context.Background(), "gpt-test", []Message{
		{Role: RoleSystem, Content: "be brief"},
		userMsg("hello"),
		{Role: RoleAssistant, Content: "hi"},
		userMsg("again"),
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", auth)
	require.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "assistant", got.Messages[2].Role)
	require.Equal(t, "again", got.Messages[3].Content)

	require.Equal(t, "hi there", reply.Message.Content)
	require.Equal(t, "gpt-test-2026", reply.Model)
	require.Equal(t, Usage{InputTokens: 7, OutputTokens: 3}, reply.Usage)
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	}))
	defer srv.Close()

	svc := NewService(NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}))
	_, err := svc.Chat(context.Background(), nil, Request{Provider: ProviderOpenAI, Messages: []Message{userMsg("x")}})
	require.True(t, errs.Is(err, errs.Unavailable))
}

func TestGeminiProvider_GenerateContent(t *testing.T) {
	var got struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "bonjour"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7},
			"modelVersion": "gemini-test-001"
		}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "g-test", BaseURL: srv.URL, DefaultModel: "gemini-test"})
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, p.Name())

	reply, err := p.Complete(context.Background(), "gemini-test", []Message{
		{Role: RoleSystem, Content: "answer in french"},
		userMsg("hello"),
		{Role: RoleAssistant, Content: "salut"},
		userMsg("again"),
	})
	require.NoError(t, err)
	require.Contains(t, path, "gemini-test:generateContent")
	require.Len(t, got.Contents, 3)
	require.Equal(t, "user", got.Contents[0].Role)
	require.Equal(t, "model", got.Contents[1].Role)
	require.NotNil(t, got.SystemInstruction)
	require.Equal(t, "answer in french", got.SystemInstruction.Parts[0].Text)

	require.Equal(t, "bonjour", reply.Message.Content)
	require.Equal(t, "gemini-test-001", reply.Model)
	require.Equal(t, Usage{InputTokens: 5, OutputTokens: 2}, reply.Usage)
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{})
	require.Error(t, err)
}
