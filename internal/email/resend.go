package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService sends mail through the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService creates a Resend-backed service. fromAddress must be
// a verified sender.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

func (r *ResendEmailService) Send(ctx context.Context, to, templateName string, data any) error {
	subject, html := render(data)

	_, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}
