package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellerShare(t *testing.T) {
	tests := []struct {
		price int64
		fee   int
		want  int64
	}{
		{price: 500, fee: 20, want: 400},
		{price: 999, fee: 20, want: 800},
		{price: 199, fee: 20, want: 160},
		{price: 1, fee: 15, want: 1},
		{price: 333, fee: 33, want: 224},
		{price: 0, fee: 20, want: 0},
		{price: 1000, fee: 0, want: 1000},
		{price: 1000, fee: 100, want: 0},
		{price: 1000, fee: -5, want: 1000},
		{price: 1000, fee: 150, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SellerShare(tt.price, tt.fee), "price=%d fee=%d", tt.price, tt.fee)
	}
}

func TestVerifyWebhookSignatureRequiresSecret(t *testing.T) {
	c := &StripeClient{}
	_, err := c.VerifyWebhookSignature([]byte(`{}`), "t=1,v1=abc", "")
	assert.Error(t, err)
}

func TestPurchaseSecretFallsBackToMain(t *testing.T) {
	c := &StripeClient{webhookSecret: "whsec_main"}
	assert.Equal(t, "whsec_main", c.GetPurchaseWebhookSecret())

	c.purchaseWebhookSecret = "whsec_notes"
	assert.Equal(t, "whsec_notes", c.GetPurchaseWebhookSecret())
}
