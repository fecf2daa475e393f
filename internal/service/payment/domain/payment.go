package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode 是支付方式
type Mode string

const (
	ModeCash    Mode = "cash"
	ModeCard    Mode = "card"
	ModeMobile  Mode = "mobile"
	ModeCheque  Mode = "cheque"
	ModeVoucher Mode = "voucher"
)

// ValidMode 校验支付方式是否受支持
func ValidMode(m Mode) bool {
	switch m {
	case ModeCash, ModeCard, ModeMobile, ModeCheque, ModeVoucher:
		return true
	}
	return false
}

// Electronic 电子支付方式需要先授权再确认
func (m Mode) Electronic() bool {
	return m == ModeCard || m == ModeMobile
}

// Status 是支付单的生命周期状态
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusAuthorized Status = "authorized"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

// Payment 是一笔收款。ClientPaymentID 由收银端生成，
// 作为幂等键：同一个键重复发起只会产生一条记录
type Payment struct {
	ID              uint64
	ClientPaymentID string
	CartID          string
	Amount          float64
	Currency        string
	Mode            Mode
	Status          Status
	Detail          string
	ManagerApproved bool
	ErpSynced       bool
	ErpRetry        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Authorize 记录一次授权结果并推进状态机
func (p *Payment) Authorize(ok bool, reason string) error {
	if !p.Mode.Electronic() {
		return ErrAuthorizationNotRequired
	}
	if p.Status != StatusInitiated && p.Status != StatusFailed {
		return ErrInvalidState
	}
	p.Detail = "provider:" + reason
	if ok {
		p.Status = StatusAuthorized
	} else {
		p.Status = StatusFailed
	}
	return nil
}

// CanConfirm 现金类直接确认，电子类必须已授权
func (p *Payment) CanConfirm() error {
	if p.Status == StatusConfirmed {
		return ErrAlreadyConfirmed
	}
	if p.Mode.Electronic() && p.Status != StatusAuthorized {
		return ErrNotAuthorized
	}
	return nil
}

// PaymentAttempt 是一次支付网关调用的留痕
type PaymentAttempt struct {
	ID               uint64
	PaymentID        uint64
	ProviderResponse string
	Success          bool
	CreatedAt        time.Time
}

// Receipt 是确认后生成的小票
type Receipt struct {
	ID            uint64
	PaymentID     uint64
	ReceiptNumber string
	Content       string
	CreatedAt     time.Time
}

// NewReceipt 小票号格式：RCPT-<支付单ID>-<创建时间戳>
func NewReceipt(p *Payment, now time.Time) *Receipt {
	rn := fmt.Sprintf("RCPT-%d-%d", p.ID, p.CreatedAt.Unix())
	content := fmt.Sprintf("Receipt %s\nPayment ID: %d\nAmount: %.2f %s\nMode: %s\nDate: %s",
		rn, p.ID, p.Amount, p.Currency, p.Mode, now.UTC().Format(time.RFC3339))
	return &Receipt{
		PaymentID:     p.ID,
		ReceiptNumber: rn,
		Content:       content,
		CreatedAt:     now,
	}
}

// ERPQueueEntry 是待同步到 ERP 的支付单
type ERPQueueEntry struct {
	ID        uint64
	PaymentID uint64
	Attempts  int
	NextTryAt time.Time
	CreatedAt time.Time
}

// CardInfo 是卡/移动支付的凭据
type CardInfo struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

// CheckCard 模拟支付渠道的授权决策。
// 卡号末位为偶数则通过，奇数则拒绝——确定性规则方便联调和测试
func CheckCard(card CardInfo) (bool, string) {
	if !allDigits(card.Number) || len(card.Number) < 12 || len(card.Number) > 19 {
		return false, "invalid_card_number"
	}
	if !allDigits(card.CVV) || len(card.CVV) < 3 || len(card.CVV) > 4 {
		return false, "invalid_cvv"
	}
	if card.Expiry == "" || !strings.Contains(card.Expiry, "/") {
		return false, "invalid_expiry"
	}
	last := card.Number[len(card.Number)-1]
	if (last-'0')%2 == 0 {
		return true, "authorized"
	}
	return false, "bank_decline"
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
