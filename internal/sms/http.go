package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

type sendRequest struct {
	LineNumber  string   `json:"lineNumber"`
	MessageText string   `json:"messageText"`
	Mobiles     []string `json:"mobiles"`
}

type providerError struct {
	Message string `json:"message"`
}

// HTTPSender posts messages to a bulk SMS HTTP API.
type HTTPSender struct {
	client     *http.Client
	url        string
	apiKey     string
	lineNumber string
}

func NewHTTPSender(url, apiKey, lineNumber string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSender{
		client:     &http.Client{Timeout: timeout},
		url:        url,
		apiKey:     apiKey,
		lineNumber: lineNumber,
	}
}

func (s *HTTPSender) Send(ctx context.Context, phoneNumbers []string, text string) error {
	if len(phoneNumbers) == 0 {
		return ErrNoRecipients
	}

	body, err := json.Marshal(sendRequest{
		LineNumber:  s.lineNumber,
		MessageText: text,
		Mobiles:     phoneNumbers,
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var perr providerError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &perr); err != nil || perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return &DeliveryError{StatusCode: resp.StatusCode, Message: perr.Message}
}
