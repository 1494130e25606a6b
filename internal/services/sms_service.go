package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

// HTTPSMSService sends text messages through a Twilio-compatible REST API:
// a form-encoded POST to {BaseURL}/Accounts/{sid}/Messages.json with basic auth.
type HTTPSMSService struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
	HTTPClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSMSService creates a new SMS sender
func NewHTTPSMSService(baseURL, accountSID, authToken, fromNumber string, timeout time.Duration, logger *slog.Logger) *HTTPSMSService {
	return &HTTPSMSService{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SendOTP texts a login verification code. The code is never logged.
func (c *HTTPSMSService) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutesUntil(expiresAt))
	return c.send(ctx, to, body)
}

func (c *HTTPSMSService) send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.BaseURL, url.PathEscape(c.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}

	c.logger.Info("sms sent", slog.String("phone", pkglogger.MaskPhone(to)))
	return nil
}

// LogSMSService records SMS deliveries without sending them
type LogSMSService struct {
	logger *slog.Logger
}

func NewLogSMSService(logger *slog.Logger) *LogSMSService {
	return &LogSMSService{logger: logger}
}

func (s *LogSMSService) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "sms delivery skipped",
		slog.String("phone", pkglogger.MaskPhone(to)),
		slog.Time("expires_at", expiresAt))
	return nil
}
