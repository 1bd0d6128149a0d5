package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

// Notifier sends security notifications to account holders. Callers treat
// delivery as best effort.
type Notifier interface {
	SendLockoutAlert(ctx context.Context, email string, blockedUntil time.Time) error
	SendAccountDisabled(ctx context.Context, email string, accessEndsAt, deletionAt time.Time) error
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

func (NoopNotifier) SendLockoutAlert(context.Context, string, time.Time) error { return nil }

func (NoopNotifier) SendAccountDisabled(context.Context, string, time.Time, time.Time) error {
	return nil
}

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends notifications using AWS SES
type SESNotifier struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier creates a new AWS SES notifier
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendLockoutAlert tells the account holder that sign-in was blocked after
// repeated failures.
func (n *SESNotifier) SendLockoutAlert(ctx context.Context, email string, blockedUntil time.Time) error {
	text := fmt.Sprintf(`Sign-in temporarily blocked

We blocked sign-in to your account after several failed attempts.
You can try again after %s.

If this wasn't you, consider changing your password once access is restored.

This is an automated message. Please do not reply to this email.
`, blockedUntil.UTC().Format(time.RFC1123))

	return n.send(ctx, email, "Sign-in to your account was blocked", text)
}

// SendAccountDisabled confirms a cancellation and states when access ends
// and when the data is deleted.
func (n *SESNotifier) SendAccountDisabled(ctx context.Context, email string, accessEndsAt, deletionAt time.Time) error {
	text := fmt.Sprintf(`Your account has been disabled

Your account was disabled at your request. You can still sign in until %s
and ask support to restore it.

After that date the account is blocked, and on %s the account and all of its
data are permanently deleted.

This is an automated message. Please do not reply to this email.
`, accessEndsAt.UTC().Format("2006-01-02"), deletionAt.UTC().Format("2006-01-02"))

	return n.send(ctx, email, "Your account has been disabled", text)
}

func (n *SESNotifier) send(ctx context.Context, email, subject, text string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("notification email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}
