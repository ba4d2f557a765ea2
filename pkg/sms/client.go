// Package sms provides a simple client for sending reminders through an
// HTTP SMS gateway.
package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client represents an SMS gateway client.
type Client struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client // HTTP client used to make requests
}

// NewClient creates a new SMS Client for the given gateway URL and API key.
func NewClient(apiURL, apiKey, from string) *Client {
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{},
	}
}

// sendMessageRequest represents the payload for the gateway's send endpoint.
type sendMessageRequest struct {
	From string `json:"from"` // sender name registered with the gateway
	To   string `json:"to"`   // recipient phone number
	Text string `json:"text"` // message text
}

// Send sends an SMS to the given phone number. The subject is ignored; SMS
// has no subject line.
func (c *Client) Send(to, _, body string) error {
	reqBody := sendMessageRequest{
		From: c.from,
		To:   to,
		Text: body,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	return nil
}
