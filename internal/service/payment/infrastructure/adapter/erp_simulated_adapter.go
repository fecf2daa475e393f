// internal/service/payment/infrastructure/adapter/erp_simulated_adapter.go
package adapter

import (
	"context"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/payment/domain"
)

// SimulatedErpAdapter 模拟 ERP 同步。
// 确定性规则：支付单 ID 为偶数则接受，奇数则拒绝，方便联调重试路径
type SimulatedErpAdapter struct{}

func NewSimulatedErpAdapter() *SimulatedErpAdapter {
	return &SimulatedErpAdapter{}
}

// SyncPayment 实现 domain.ErpGateway
func (a *SimulatedErpAdapter) SyncPayment(ctx context.Context, p *domain.Payment) (bool, error) {
	accepted := p.ID%2 == 0
	logger.Ctx(ctx).Debug().
		Uint64("payment_id", p.ID).
		Bool("accepted", accepted).
		Msg("simulated erp sync")
	return accepted, nil
}
