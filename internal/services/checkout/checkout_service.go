package checkout

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service talks to the hosted-checkout vendor used for client deposits. The
// vendor is an external collaborator: we create a session, redirect the user
// to its checkout URL, and settle the deposit from its signed webhook.
type Service struct {
	Client       *http.Client
	APIKey       string
	PrivateKey   string
	MerchantCode string
	BaseURL      string
	CallbackURL  string
}

func NewService(baseURL, apiKey, privateKey, merchantCode, callbackURL string) *Service {
	return &Service{
		Client:       &http.Client{Timeout: 15 * time.Second},
		APIKey:       apiKey,
		PrivateKey:   privateKey,
		MerchantCode: merchantCode,
		BaseURL:      baseURL,
		CallbackURL:  callbackURL,
	}
}

type SessionRequest struct {
	MerchantRef   string `json:"merchant_ref"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Description   string `json:"description"`
	CallbackURL   string `json:"callback_url"`
	ExpiredTime   int64  `json:"expired_time"` // Unix timestamp
	Signature     string `json:"signature"`
}

type SessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		MerchantRef string `json:"merchant_ref"`
		CheckoutURL string `json:"checkout_url"`
		Amount      int64  `json:"amount"`
	} `json:"data"`
}

// CreateSession opens a hosted checkout session for a deposit.
// Signature: HMAC-SHA256( merchant_code + merchant_ref + amount, private_key )
func (s *Service) CreateSession(merchantRef string, amount int64, customerName, customerEmail string) (*SessionResponse, error) {
	sigData := fmt.Sprintf("%s%s%d", s.MerchantCode, merchantRef, amount)

	reqBody := SessionRequest{
		MerchantRef:   merchantRef,
		Amount:        amount,
		Currency:      "USD",
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Description:   "TaskHived credits top-up",
		CallbackURL:   s.CallbackURL,
		ExpiredTime:   time.Now().Add(24 * time.Hour).Unix(),
		Signature:     s.generateSignature(sigData),
	}

	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/v1/checkout/sessions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid checkout response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("checkout vendor rejected session: %s", out.Message)
	}
	return &out, nil
}

func (s *Service) generateSignature(data string) string {
	mac := hmac.New(sha256.New, []byte(s.PrivateKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks the X-Callback-Signature header on the webhook:
// HMAC-SHA256 of the raw body with the private key.
func (s *Service) ValidateSignature(signature, body string) bool {
	mac := hmac.New(sha256.New, []byte(s.PrivateKey))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
