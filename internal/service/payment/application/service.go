package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/payment/domain"
)

// PaymentService 定义了收款服务提供的所有业务用例
type PaymentService struct {
	store    domain.PaymentStore
	clock    domain.Clock
	tracer   trace.Tracer
	approval domain.ApprovalPolicy
	checkout domain.CheckoutGateway
}

// NewPaymentService 创建一个新的收款服务实例。
// checkout 可以为 nil（没有挂购物车的独立收款场景）
func NewPaymentService(store domain.PaymentStore, clock domain.Clock, tracer trace.Tracer,
	approval domain.ApprovalPolicy, checkout domain.CheckoutGateway) *PaymentService {
	return &PaymentService{
		store:    store,
		clock:    clock,
		tracer:   tracer,
		approval: approval,
		checkout: checkout,
	}
}

// Initiate 发起一笔收款。client_payment_id 是幂等键：
// 并发重复请求靠唯一索引兜底，冲突时返回既有记录
func (s *PaymentService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.client_id", req.ClientPaymentID),
		attribute.Float64("payment.amount", req.Amount),
		attribute.String("payment.mode", string(req.Mode)),
	)

	if req.ClientPaymentID == "" || req.Amount <= 0 || req.Mode == "" {
		return nil, domain.ErrInvalidRequest
	}
	if !domain.ValidMode(req.Mode) {
		return nil, domain.ErrInvalidMode
	}
	currency := req.Currency
	if currency == "" {
		currency = "TND"
	}

	now := s.clock.Now()
	p := &domain.Payment{
		ClientPaymentID: req.ClientPaymentID,
		CartID:          req.CartID,
		Amount:          req.Amount,
		Currency:        currency,
		Mode:            req.Mode,
		Status:          domain.StatusInitiated,
		ManagerApproved: req.ManagerApproved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.store.CreatePayment(ctx, p)
	if errors.Is(err, domain.ErrDuplicateClientID) {
		existing, lookupErr := s.store.GetPaymentByClientID(ctx, req.ClientPaymentID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		span.AddEvent("idempotent hit, returning existing payment")
		return &InitiateResult{Result: "exists", PaymentID: existing.ID, Status: existing.Status}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Uint64("payment_id", p.ID).
		Str("client_payment_id", p.ClientPaymentID).
		Float64("amount", p.Amount).
		Msg("✅ Payment initiated")
	return &InitiateResult{Result: "initiated", PaymentID: p.ID, Status: p.Status}, nil
}

// Authorize 对电子支付做授权。大额支付先过审批规则，再走模拟渠道
func (s *PaymentService) Authorize(ctx context.Context, paymentID uint64, card domain.CardInfo) (*AuthorizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Authorize")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.id", int64(paymentID)))

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Mode.Electronic() {
		return nil, domain.ErrAuthorizationNotRequired
	}
	if p.Status != domain.StatusInitiated && p.Status != domain.StatusFailed {
		return nil, domain.ErrInvalidState
	}

	required, err := s.approval.RequiresApproval(p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if required {
		span.AddEvent("manager approval required")
		return nil, domain.ErrApprovalRequired
	}

	ok, reason := domain.CheckCard(card)
	attempt := &domain.PaymentAttempt{
		PaymentID:        p.ID,
		ProviderResponse: reason,
		Success:          ok,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := p.Authorize(ok, reason); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !ok {
		logger.Ctx(ctx).Warn().Uint64("payment_id", p.ID).Str("reason", reason).Msg("🛑 Payment declined")
		return &AuthorizeResult{Result: "declined", PaymentID: p.ID, Reason: reason}, domain.ErrDeclined
	}
	logger.Ctx(ctx).Info().Uint64("payment_id", p.ID).Msg("✅ Payment authorized")
	return &AuthorizeResult{Result: "authorized", PaymentID: p.ID}, nil
}

// Confirm 确认收款：先把购物车的预留兑现成永久扣减，
// 然后生成小票并排队等待 ERP 同步。重复确认幂等返回
func (s *PaymentService) Confirm(ctx context.Context, paymentID uint64) (*ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Confirm")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.id", int64(paymentID)))

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.StatusConfirmed {
		receipt, rErr := s.store.GetReceiptByPayment(ctx, p.ID)
		result := &ConfirmResult{Result: "already_confirmed", PaymentID: p.ID}
		if rErr == nil {
			result.ReceiptNumber = receipt.ReceiptNumber
		}
		return result, nil
	}
	if err := p.CanConfirm(); err != nil {
		return nil, err
	}

	var committed []domain.CommittedLine
	if s.checkout != nil && p.CartID != "" {
		cart, err := s.checkout.CommitCart(ctx, p.CartID)
		if err != nil {
			if errors.Is(err, domain.ErrCartEmpty) {
				// 购物车已经被兑现过（比如上一次确认在写库前崩溃）。
				// 预留侧是幂等的，继续走后面的收尾即可
				span.AddEvent("cart already committed, proceeding")
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		} else {
			committed = cart.Lines
			span.SetAttributes(attribute.Int("cart.committed_lines", len(committed)))
		}
	}

	now := s.clock.Now()
	p.Status = domain.StatusConfirmed
	p.UpdatedAt = now
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}

	receipt := domain.NewReceipt(p, now)
	if err := s.store.CreateReceipt(ctx, receipt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.EnqueueERP(ctx, &domain.ERPQueueEntry{PaymentID: p.ID, CreatedAt: now}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Uint64("payment_id", p.ID).
		Str("receipt", receipt.ReceiptNumber).
		Int("committed_lines", len(committed)).
		Msg("✅ Payment confirmed")
	return &ConfirmResult{
		Result:         "confirmed",
		PaymentID:      p.ID,
		ReceiptNumber:  receipt.ReceiptNumber,
		CommittedLines: committed,
	}, nil
}

// Approve 主管放行一笔大额支付
func (s *PaymentService) Approve(ctx context.Context, paymentID uint64) error {
	ctx, span := s.tracer.Start(ctx, "payment.Approve")
	defer span.End()

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	p.ManagerApproved = true
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Uint64("payment_id", p.ID).Msg("Manager approval granted")
	return nil
}

// ForceSync 管理端手工标记 ERP 同步完成，同时清掉队列里的残留条目
func (s *PaymentService) ForceSync(ctx context.Context, paymentID uint64) error {
	ctx, span := s.tracer.Start(ctx, "payment.ForceSync")
	defer span.End()

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	p.ErpSynced = true
	p.ErpRetry++
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	if err := s.store.DeleteERPByPayment(ctx, paymentID); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Uint64("payment_id", p.ID).Msg("ERP sync forced by admin")
	return nil
}

// Get 返回支付单详情，小票存在时一并带出
func (s *PaymentService) Get(ctx context.Context, paymentID uint64) (*PaymentView, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	view := toPaymentView(p)
	receipt, err := s.store.GetReceiptByPayment(ctx, p.ID)
	if err == nil {
		view.Receipt = &ReceiptView{
			ReceiptNumber: receipt.ReceiptNumber,
			PaymentID:     receipt.PaymentID,
			Content:       receipt.Content,
			CreatedAt:     receipt.CreatedAt,
		}
	} else if !errors.Is(err, domain.ErrReceiptNotFound) {
		return nil, err
	}
	return view, nil
}

// List 按创建时间倒序返回最近的支付单
func (s *PaymentService) List(ctx context.Context, limit int) ([]*PaymentView, error) {
	if limit <= 0 {
		limit = 100
	}
	payments, err := s.store.ListPayments(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*PaymentView, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentView(p))
	}
	return out, nil
}

// GetReceipt 按小票号查询
func (s *PaymentService) GetReceipt(ctx context.Context, receiptNumber string) (*ReceiptView, error) {
	r, err := s.store.GetReceipt(ctx, receiptNumber)
	if err != nil {
		return nil, err
	}
	return &ReceiptView{
		ReceiptNumber: r.ReceiptNumber,
		PaymentID:     r.PaymentID,
		Content:       r.Content,
		CreatedAt:     r.CreatedAt,
	}, nil
}

// ListErpQueue 管理端查看待同步队列
func (s *PaymentService) ListErpQueue(ctx context.Context) ([]*ErpQueueView, error) {
	entries, err := s.store.PendingERP(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ErpQueueView, 0, len(entries))
	for _, e := range entries {
		out = append(out, &ErpQueueView{ID: e.ID, PaymentID: e.PaymentID, Attempts: e.Attempts, CreatedAt: e.CreatedAt})
	}
	return out, nil
}

func toPaymentView(p *domain.Payment) *PaymentView {
	return &PaymentView{
		ID:              p.ID,
		ClientPaymentID: p.ClientPaymentID,
		CartID:          p.CartID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Mode:            p.Mode,
		Status:          p.Status,
		Detail:          p.Detail,
		ManagerApproved: p.ManagerApproved,
		ErpSynced:       p.ErpSynced,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
