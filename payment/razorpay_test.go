package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateOrder(t *testing.T) {
	var got createOrderReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "shh", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":2480,"currency":"INR","receipt":"o-1","status":"created"}`))
	}))
	defer srv.Close()

	c, err := NewRazorpayClient(RazorpayConfig{KeyID: "rzp_test_key", KeySecret: "shh", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	gw, err := c.CreateOrder(context.Background(), "o-1", decimal.RequireFromString("24.80"), "INR")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", gw.ID)
	assert.Equal(t, int64(2480), gw.Amount)
	assert.Equal(t, int64(2480), got.Amount)
	assert.Equal(t, "o-1", got.Receipt)
	assert.Equal(t, "o-1", got.Notes["order_id"])
}

func TestRazorpayCreateOrder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	c, err := NewRazorpayClient(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.CreateOrder(context.Background(), "o-1", decimal.NewFromInt(0), "INR")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "amount too small"), err.Error())
}

func TestNewRazorpayClient_RequiresKeys(t *testing.T) {
	_, err := NewRazorpayClient(RazorpayConfig{KeyID: "k"})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	payload := []byte("order_abc|pay_xyz")
	sig := Sign(payload, "secret")
	assert.Len(t, sig, 64)
	assert.True(t, validSignature(payload, sig, "secret"))
	assert.True(t, validSignature(payload, strings.ToUpper(sig), "secret"))
	assert.False(t, validSignature(payload, sig, "other"))
	assert.False(t, validSignature([]byte("order_abc|pay_other"), sig, "secret"))
	assert.False(t, validSignature(payload, "", "secret"))
	assert.False(t, validSignature(payload, sig, ""))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1234), ToMinorUnits(decimal.RequireFromString("12.34")))
	assert.Equal(t, int64(1235), ToMinorUnits(decimal.RequireFromString("12.345")))
	assert.True(t, decimal.RequireFromString("12.34").Equal(FromMinorUnits(1234)))
}

func TestMockGateway(t *testing.T) {
	gw, err := MockGateway{}.CreateOrder(context.Background(), "o-1", decimal.NewFromInt(5), "INR")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gw.ID, "order_mock_"))
	assert.Len(t, gw.ID, len("order_mock_")+14)
	assert.Equal(t, int64(500), gw.Amount)
}
