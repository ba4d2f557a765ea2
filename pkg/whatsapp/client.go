// Package whatsapp provides a client for sending messages through the
// WhatsApp Business Cloud API.
package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client represents a WhatsApp Business API client.
type Client struct {
	apiURL string
	token  string
	client *http.Client // HTTP client used to make requests
}

// NewClient creates a new WhatsApp Client with the given API URL and access
// token.
func NewClient(apiURL, token string) *Client {
	return &Client{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{},
	}
}

// sendMessageRequest represents the payload for the messages endpoint.
type sendMessageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             messageText `json:"text"`
}

type messageText struct {
	Body string `json:"body"`
}

// Send sends a WhatsApp text message to the given phone number. The subject
// is ignored; WhatsApp messages carry only a body.
func (c *Client) Send(to, _, body string) error {
	reqBody := sendMessageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             messageText{Body: body},
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
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp API error: %s", resp.Status)
	}

	return nil
}
