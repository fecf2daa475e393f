package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCard(t *testing.T) {
	valid := CardInfo{Number: "411111111111111", Expiry: "12/27", CVV: "123"}

	tests := []struct {
		name   string
		card   CardInfo
		ok     bool
		reason string
	}{
		{"even last digit accepted", CardInfo{Number: "4111111111111112", Expiry: "12/27", CVV: "123"}, true, "authorized"},
		{"odd last digit declined", valid, false, "bank_decline"},
		{"too short", CardInfo{Number: "41111", Expiry: "12/27", CVV: "123"}, false, "invalid_card_number"},
		{"non numeric", CardInfo{Number: "4111-1111-1111-1112", Expiry: "12/27", CVV: "123"}, false, "invalid_card_number"},
		{"bad cvv", CardInfo{Number: "4111111111111112", Expiry: "12/27", CVV: "12"}, false, "invalid_cvv"},
		{"bad expiry", CardInfo{Number: "4111111111111112", Expiry: "1227", CVV: "123"}, false, "invalid_expiry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := CheckCard(tt.card)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPaymentAuthorizeTransitions(t *testing.T) {
	p := &Payment{ID: 1, Mode: ModeCash, Status: StatusInitiated}
	assert.ErrorIs(t, p.Authorize(true, "authorized"), ErrAuthorizationNotRequired)

	p = &Payment{ID: 1, Mode: ModeCard, Status: StatusInitiated}
	require.NoError(t, p.Authorize(false, "bank_decline"))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "provider:bank_decline", p.Detail)

	// 失败后允许重试授权
	require.NoError(t, p.Authorize(true, "authorized"))
	assert.Equal(t, StatusAuthorized, p.Status)

	// 已授权不能再授权
	assert.ErrorIs(t, p.Authorize(true, "authorized"), ErrInvalidState)
}

func TestCanConfirm(t *testing.T) {
	cash := &Payment{Mode: ModeCash, Status: StatusInitiated}
	assert.NoError(t, cash.CanConfirm())

	card := &Payment{Mode: ModeCard, Status: StatusInitiated}
	assert.ErrorIs(t, card.CanConfirm(), ErrNotAuthorized)
	card.Status = StatusAuthorized
	assert.NoError(t, card.CanConfirm())
	card.Status = StatusConfirmed
	assert.ErrorIs(t, card.CanConfirm(), ErrAlreadyConfirmed)
}

func TestNewReceipt(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &Payment{ID: 42, Amount: 120.5, Currency: "TND", Mode: ModeCard, CreatedAt: created}

	r := NewReceipt(p, created.Add(time.Minute))
	assert.Equal(t, fmt.Sprintf("RCPT-42-%d", created.Unix()), r.ReceiptNumber)
	assert.Contains(t, r.Content, "Payment ID: 42")
	assert.Contains(t, r.Content, "120.50 TND")
}
