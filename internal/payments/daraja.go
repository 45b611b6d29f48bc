package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DarajaConfig configures the Safaricom Daraja client.
type DarajaConfig struct {
	ConsumerKey        string
	ConsumerSecret     string
	PassKey            string
	ShortCode          string
	CallbackURL        string
	ResultURL          string
	QueueTimeoutURL    string
	InitiatorName      string
	SecurityCredential string
	Sandbox            bool
	BaseURL            string // overrides the derived URL, for tests
}

// DarajaClient implements Gateway against the Safaricom Daraja API.
type DarajaClient struct {
	cfg        DarajaConfig
	httpClient *http.Client
	baseURL    string

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

// NewDarajaClient creates a Daraja gateway client.
func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.safaricom.co.ke"
		if cfg.Sandbox {
			baseURL = "https://sandbox.safaricom.co.ke"
		}
	}

	return &DarajaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *DarajaClient) getAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	url := fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret),
	)
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(55 * time.Minute)
	return c.accessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// RequestDeposit sends an STK push to the user's phone. The returned
// provider ref is the CheckoutRequestID the settlement callback echoes.
func (c *DarajaClient) RequestDeposit(ctx context.Context, phone string, amount int64, reference string) (*DepositIntent, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp),
	)

	var stkResp stkPushResponse
	err = c.post(ctx, token, "/mpesa/stkpush/v1/processrequest", stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   "SokoCap Deposit",
	}, &stkResp)
	if err != nil {
		return nil, err
	}

	if stkResp.ResponseCode != "0" {
		return nil, fmt.Errorf("STK push rejected: %s", stkResp.ResponseDescription)
	}
	return &DepositIntent{
		ProviderRef:     stkResp.CheckoutRequestID,
		CustomerMessage: stkResp.CustomerMessage,
	}, nil
}

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// RequestPayout sends a B2C payment to the user's phone. The returned
// provider ref is the ConversationID the result callback echoes.
func (c *DarajaClient) RequestPayout(ctx context.Context, phone string, amount int64, reference string) (*PayoutIntent, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payoutResp b2cResponse
	err = c.post(ctx, token, "/mpesa/b2c/v1/paymentrequest", b2cRequest{
		InitiatorName:      c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          "BusinessPayment",
		Amount:             amount,
		PartyA:             c.cfg.ShortCode,
		PartyB:             phone,
		Remarks:            "SokoCap Withdrawal",
		QueueTimeOutURL:    c.cfg.QueueTimeoutURL,
		ResultURL:          c.cfg.ResultURL,
		Occasion:           reference,
	}, &payoutResp)
	if err != nil {
		return nil, err
	}

	if payoutResp.ResponseCode != "0" {
		return nil, fmt.Errorf("B2C request rejected: %s", payoutResp.ResponseDescription)
	}
	return &PayoutIntent{ProviderRef: payoutResp.ConversationID}, nil
}

func (c *DarajaClient) post(ctx context.Context, token, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// STKCallback is the raw deposit settlement callback from Daraja.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// ParseSTKCallback flattens a deposit callback into a CallbackResult.
func ParseSTKCallback(cb *STKCallback) *CallbackResult {
	result := &CallbackResult{
		ProviderRef: cb.Body.StkCallback.CheckoutRequestID,
		Success:     cb.Body.StkCallback.ResultCode == 0,
		Reason:      cb.Body.StkCallback.ResultDesc,
	}
	if cb.Body.StkCallback.CallbackMetadata == nil {
		return result
	}
	for _, item := range cb.Body.StkCallback.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.ReceiptNo = v
			}
		case "PhoneNumber":
			if v, ok := item.Value.(float64); ok {
				result.Phone = fmt.Sprintf("%.0f", v)
			}
		}
	}
	return result
}

// B2CCallback is the raw payout result callback from Daraja.
type B2CCallback struct {
	Result struct {
		ResultCode       int    `json:"ResultCode"`
		ResultDesc       string `json:"ResultDesc"`
		ConversationID   string `json:"ConversationID"`
		TransactionID    string `json:"TransactionID"`
		ResultParameters *struct {
			ResultParameter []resultParameter `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

type resultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

// ParseB2CCallback flattens a payout callback into a CallbackResult.
func ParseB2CCallback(cb *B2CCallback) *CallbackResult {
	result := &CallbackResult{
		ProviderRef: cb.Result.ConversationID,
		Success:     cb.Result.ResultCode == 0,
		Reason:      cb.Result.ResultDesc,
		ReceiptNo:   cb.Result.TransactionID,
	}
	if cb.Result.ResultParameters == nil {
		return result
	}
	for _, param := range cb.Result.ResultParameters.ResultParameter {
		if param.Key == "ReceiverPartyPublicName" {
			if v, ok := param.Value.(string); ok {
				result.Phone = v
			}
		}
	}
	return result
}

// MockGateway records requests and accepts everything. Tests settle the
// resulting transactions by calling the service callbacks directly.
type MockGateway struct {
	mu       sync.Mutex
	Deposits []MockRequest
	Payouts  []MockRequest
	Err      error
}

// MockRequest is one recorded gateway call.
type MockRequest struct {
	Phone     string
	Amount    int64
	Reference string
}

// NewMockGateway creates an in-memory gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) RequestDeposit(ctx context.Context, phone string, amount int64, reference string) (*DepositIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Deposits = append(g.Deposits, MockRequest{Phone: phone, Amount: amount, Reference: reference})
	return &DepositIntent{
		ProviderRef:     fmt.Sprintf("mock-checkout-%d", len(g.Deposits)),
		CustomerMessage: "Success. Request accepted for processing",
	}, nil
}

func (g *MockGateway) RequestPayout(ctx context.Context, phone string, amount int64, reference string) (*PayoutIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Payouts = append(g.Payouts, MockRequest{Phone: phone, Amount: amount, Reference: reference})
	return &PayoutIntent{ProviderRef: fmt.Sprintf("mock-conv-%d", len(g.Payouts))}, nil
}
