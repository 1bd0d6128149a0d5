package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CaptchaResult is a provider's verdict on a token.
type CaptchaResult struct {
	Success    bool
	ErrorCodes []string
}

// CaptchaVerifier checks a CAPTCHA token with an external provider.
type CaptchaVerifier interface {
	// Enabled reports whether a provider is configured. The gate never
	// demands a token from a disabled verifier.
	Enabled() bool
	Verify(ctx context.Context, token, remoteIP string) (CaptchaResult, error)
}

// NoopVerifier is used when no provider is configured.
type NoopVerifier struct{}

func (NoopVerifier) Enabled() bool { return false }

func (NoopVerifier) Verify(context.Context, string, string) (CaptchaResult, error) {
	return CaptchaResult{Success: true}, nil
}

// TurnstileVerifier calls a Turnstile-compatible siteverify endpoint.
type TurnstileVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewTurnstileVerifier(secret, verifyURL string, timeout time.Duration) *TurnstileVerifier {
	return &TurnstileVerifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// NewCaptchaVerifier selects the verifier for provider; "" yields NoopVerifier.
func NewCaptchaVerifier(provider, secret, verifyURL string, timeout time.Duration) (CaptchaVerifier, error) {
	switch strings.ToLower(provider) {
	case "":
		return NoopVerifier{}, nil
	case "turnstile":
		return NewTurnstileVerifier(secret, verifyURL, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported captcha provider %q", provider)
	}
}

func (v *TurnstileVerifier) Enabled() bool { return true }

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (CaptchaResult, error) {
	if token == "" {
		return CaptchaResult{ErrorCodes: []string{"missing-input-response"}}, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("captcha provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CaptchaResult{}, fmt.Errorf("captcha provider returned status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return CaptchaResult{}, errors.New("captcha provider returned malformed response")
	}

	return CaptchaResult{Success: body.Success, ErrorCodes: body.ErrorCodes}, nil
}
