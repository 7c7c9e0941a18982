package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geoform-backend/internal/config"
)

// ErrCaptchaFailed marks a failed or unverifiable captcha challenge. It is
// always handled as a validation failure, never as a server error.
var ErrCaptchaFailed = errors.New("captcha verification failed")

// CaptchaVerifier calls the external verification service with a fixed
// timeout.
type CaptchaVerifier struct {
	PublicKey  string
	privateKey string
	verifyURL  string
	client     *http.Client
}

func NewCaptchaVerifier(cfg config.CaptchaConfig) *CaptchaVerifier {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CaptchaVerifier{
		PublicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		verifyURL:  cfg.VerifyURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Verify checks the client's captcha response token. Network failures and
// rejections both return ErrCaptchaFailed.
func (v *CaptchaVerifier) Verify(ctx context.Context, response, remoteIP string) error {
	if response == "" {
		return ErrCaptchaFailed
	}

	form := url.Values{}
	form.Set("secret", v.privateKey)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	if !result.Success {
		return ErrCaptchaFailed
	}
	return nil
}
