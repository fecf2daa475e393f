package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/service/payment/domain"
)

func TestDefaultApprovalRule(t *testing.T) {
	engine, err := NewCELApprovalEngine(`amount > 1000.0 && !manager_approved`)
	require.NoError(t, err)

	tests := []struct {
		name     string
		payment  *domain.Payment
		required bool
	}{
		{"small amount", &domain.Payment{Amount: 500}, false},
		{"exactly at threshold", &domain.Payment{Amount: 1000}, false},
		{"above threshold", &domain.Payment{Amount: 1500}, true},
		{"above threshold but approved", &domain.Payment{Amount: 1500, ManagerApproved: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			required, err := engine.RequiresApproval(tt.payment)
			require.NoError(t, err)
			assert.Equal(t, tt.required, required)
		})
	}
}

func TestModeAwareRule(t *testing.T) {
	engine, err := NewCELApprovalEngine(`mode == "cheque" || (amount > 200.0 && !manager_approved)`)
	require.NoError(t, err)

	required, err := engine.RequiresApproval(&domain.Payment{Amount: 50, Mode: domain.ModeCheque})
	require.NoError(t, err)
	assert.True(t, required)

	required, err = engine.RequiresApproval(&domain.Payment{Amount: 50, Mode: domain.ModeCash})
	require.NoError(t, err)
	assert.False(t, required)
}

func TestInvalidRules(t *testing.T) {
	_, err := NewCELApprovalEngine(`amount >`)
	assert.Error(t, err)

	// 语法正确但不是 bool 的表达式在编译期就拒绝
	_, err = NewCELApprovalEngine(`amount + 1.0`)
	assert.Error(t, err)
}
