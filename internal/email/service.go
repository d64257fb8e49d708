// Package email sends transactional mail: welcome and password reset.
package email

import (
	"context"
	"sync"

	"github.com/kuitang/notefold/internal/obs"
)

// EmailService sends templated email.
type EmailService interface {
	Send(ctx context.Context, to, templateName string, data any) error
}

// SentEmail is a captured message.
type SentEmail struct {
	To       string
	Template string
	Data     any
}

// MockEmailService records messages instead of sending them. Used with
// --no-email and in tests.
type MockEmailService struct {
	mu     sync.Mutex
	Emails []SentEmail
}

// NewMockEmailService creates an empty mock.
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

// Send captures the email and logs the link so local users can follow it.
func (m *MockEmailService) Send(ctx context.Context, to, templateName string, data any) error {
	m.mu.Lock()
	m.Emails = append(m.Emails, SentEmail{To: to, Template: templateName, Data: data})
	m.mu.Unlock()

	logger := obs.From(ctx).With("pkg", "email", "to", to, "template", templateName)
	switch d := data.(type) {
	case PasswordResetData:
		logger.Info("mock_email_sent", "link", d.Link, "expires_in", d.ExpiresIn)
	default:
		logger.Info("mock_email_sent")
	}
	return nil
}

// LastEmail returns the most recent message, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

// Count returns the number of captured messages.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}

// Clear drops captured messages.
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = nil
}
