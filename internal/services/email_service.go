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

	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

// sesAPI is the subset of the SES client used for sending
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 28px; letter-spacing: 6px; font-weight: bold; text-align: center; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>%s</h1></div>
        <div class="content">%s</div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`

// SendOTP sends a login verification code
func (s *AWSSESEmailService) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	minutes := minutesUntil(expiresAt)
	html := fmt.Sprintf(`<p>Use this code to finish signing in:</p>
            <p class="code">%s</p>
            <p>The code expires in %d minutes. If you did not try to sign in, change your password.</p>`, code, minutes)
	text := fmt.Sprintf("Your sign-in code is %s\n\nThe code expires in %d minutes. If you did not try to sign in, change your password.\n", code, minutes)

	return s.send(ctx, "otp", to, "Your sign-in code", html, text)
}

// SendResetCode sends a password reset code
func (s *AWSSESEmailService) SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	minutes := minutesUntil(expiresAt)
	html := fmt.Sprintf(`<p>We received a request to reset your password. Enter this code to continue:</p>
            <p class="code">%s</p>
            <p>The code expires in %d minutes. If you did not request a reset, you can ignore this email.</p>`, code, minutes)
	text := fmt.Sprintf("Your password reset code is %s\n\nThe code expires in %d minutes. If you did not request a reset, you can ignore this email.\n", code, minutes)

	return s.send(ctx, "password_reset", to, "Reset your password", html, text)
}

// SendPasswordChanged confirms a completed password reset
func (s *AWSSESEmailService) SendPasswordChanged(ctx context.Context, to string) error {
	html := `<p>Your password was just changed and all remembered devices were signed out.</p>
            <p>If this wasn't you, contact support immediately.</p>`
	text := "Your password was just changed and all remembered devices were signed out.\n\nIf this wasn't you, contact support immediately.\n"

	return s.send(ctx, "password_changed", to, "Your password was changed", html, text)
}

func (s *AWSSESEmailService) send(ctx context.Context, kind, to, subject, htmlContent, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(fmt.Sprintf(emailLayout, subject, htmlContent)),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func minutesUntil(t time.Time) int {
	minutes := int(time.Until(t).Round(time.Minute) / time.Minute)
	return max(minutes, 1)
}

// LogEmailService records email deliveries without sending them. Used when
// SES is disabled; codes are never written to the log.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "email delivery skipped",
		slog.String("kind", "otp"),
		slog.String("email", pkglogger.MaskEmail(to)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "email delivery skipped",
		slog.String("kind", "password_reset"),
		slog.String("email", pkglogger.MaskEmail(to)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendPasswordChanged(ctx context.Context, to string) error {
	s.logger.InfoContext(ctx, "email delivery skipped",
		slog.String("kind", "password_changed"),
		slog.String("email", pkglogger.MaskEmail(to)))
	return nil
}
