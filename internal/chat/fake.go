package chat

import (
	"context"
	"sync"
)

// FakeProvider echoes the last message back. It records every call and can be
// told to fail, for tests and local runs without provider keys.
type FakeProvider struct {
	ProviderName string
	Model        string
	Err          error

	mu    sync.Mutex
	calls [][]Message
}

func (f *FakeProvider) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *FakeProvider) DefaultModel() string {
	if f.Model == "" {
		return "fake-model"
	}
	return f.Model
}

func (f *FakeProvider) Complete(_ context.Context, model string, messages []Message) (*Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]Message(nil), messages...))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	last := messages[len(messages)-1]
	return &Reply{
		Model:   model,
		Message: Message{Role: RoleAssistant, Content: "echo: " + last.Content},
		Usage:   Usage{InputTokens: int64(len(messages)), OutputTokens: 1},
	}, nil
}

// Calls returns a copy of the message lists seen so far.
func (f *FakeProvider) Calls() [][]Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]Message(nil), f.calls...)
}
