package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SMSSender sends one text message.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// SMSConfig configures the Africa's Talking client.
type SMSConfig struct {
	APIKey   string
	Username string
	Sender   string
	Sandbox  bool
	BaseURL  string // overrides the derived URL, for tests
}

// SMSClient sends SMS through the Africa's Talking messaging API.
type SMSClient struct {
	cfg        SMSConfig
	httpClient *http.Client
	baseURL    string
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// NewSMSClient creates an Africa's Talking SMS client.
func NewSMSClient(cfg SMSConfig) *SMSClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.africastalking.com"
		if cfg.Sandbox {
			baseURL = "https://api.sandbox.africastalking.com"
		}
	}

	return &SMSClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// Send delivers one message to one recipient.
func (c *SMSClient) Send(ctx context.Context, to, message string) error {
	endpoint := fmt.Sprintf("%s/version1/messaging", c.baseURL)

	data := url.Values{}
	data.Set("username", c.cfg.Username)
	data.Set("to", to)
	data.Set("message", message)
	if c.cfg.Sender != "" {
		data.Set("from", c.cfg.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API returned status %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.SMSMessageData.Recipients) > 0 {
		recipient := result.SMSMessageData.Recipients[0]
		if recipient.StatusCode != 101 {
			return fmt.Errorf("SMS failed: %s", recipient.Status)
		}
	}
	return nil
}

// MockSMS records messages instead of sending them.
type MockSMS struct {
	mu   sync.Mutex
	Sent []MockMessage
}

// MockMessage is one recorded message.
type MockMessage struct {
	To      string
	Message string
}

// NewMockSMS creates an in-memory SMS recorder.
func NewMockSMS() *MockSMS {
	return &MockSMS{}
}

func (m *MockSMS) Send(ctx context.Context, to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, MockMessage{To: to, Message: message})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockSMS) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}
