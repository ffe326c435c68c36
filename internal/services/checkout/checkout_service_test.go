package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(key, body string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateSessionSignsRequest(t *testing.T) {
	var got SessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"reference":    "VND-001",
				"merchant_ref": got.MerchantRef,
				"checkout_url": "https://pay.example.com/VND-001",
				"amount":       got.Amount,
			},
		})
	}))
	defer srv.Close()

	s := NewService(srv.URL, "api-key", "private-key", "TH001", "https://api.example.com/callback")

	resp, err := s.CreateSession("DEP-ABC123", 5000, "Ada", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/VND-001", resp.Data.CheckoutURL)
	assert.Equal(t, "DEP-ABC123", resp.Data.MerchantRef)

	// signature covers merchant_code + merchant_ref + amount
	assert.Equal(t, signBody("private-key", "TH001DEP-ABC1235000"), got.Signature)
	assert.Equal(t, "https://api.example.com/callback", got.CallbackURL)
}

func TestCreateSessionSurfacesVendorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "merchant suspended",
		})
	}))
	defer srv.Close()

	s := NewService(srv.URL, "api-key", "private-key", "TH001", "")
	_, err := s.CreateSession("DEP-X", 100, "Ada", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merchant suspended")
}

func TestValidateSignature(t *testing.T) {
	s := NewService("", "", "private-key", "TH001", "")
	body := `{"merchant_ref":"DEP-X","status":"PAID","amount":100}`

	assert.True(t, s.ValidateSignature(signBody("private-key", body), body))
	assert.False(t, s.ValidateSignature(signBody("wrong-key", body), body))
	assert.False(t, s.ValidateSignature("garbage", body))
}
