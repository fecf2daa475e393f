package infrastructure

import (
	"poscore/internal/service/payment/domain"
)

// ToDomainPayment 将数据库模型转换为领域模型
func ToDomainPayment(model *PaymentModel) *domain.Payment {
	if model == nil {
		return nil
	}
	return &domain.Payment{
		ID:              model.ID,
		ClientPaymentID: model.ClientPaymentID,
		CartID:          model.CartID,
		Amount:          model.Amount,
		Currency:        model.Currency,
		Mode:            model.Mode,
		Status:          model.Status,
		Detail:          model.Detail,
		ManagerApproved: model.ManagerApproved,
		ErpSynced:       model.ErpSynced,
		ErpRetry:        model.ErpRetry,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// FromDomainPayment 将领域模型转换为数据库模型
func FromDomainPayment(dmn *domain.Payment) *PaymentModel {
	if dmn == nil {
		return nil
	}
	return &PaymentModel{
		ID:              dmn.ID,
		ClientPaymentID: dmn.ClientPaymentID,
		CartID:          dmn.CartID,
		Amount:          dmn.Amount,
		Currency:        dmn.Currency,
		Mode:            dmn.Mode,
		Status:          dmn.Status,
		Detail:          dmn.Detail,
		ManagerApproved: dmn.ManagerApproved,
		ErpSynced:       dmn.ErpSynced,
		ErpRetry:        dmn.ErpRetry,
		CreatedAt:       dmn.CreatedAt,
		UpdatedAt:       dmn.UpdatedAt,
	}
}

// ToDomainReceipt 将数据库模型转换为领域模型
func ToDomainReceipt(model *ReceiptModel) *domain.Receipt {
	if model == nil {
		return nil
	}
	return &domain.Receipt{
		ID:            model.ID,
		PaymentID:     model.PaymentID,
		ReceiptNumber: model.ReceiptNumber,
		Content:       model.Content,
		CreatedAt:     model.CreatedAt,
	}
}

// ToDomainERPEntry 将数据库模型转换为领域模型
func ToDomainERPEntry(model *ERPQueueModel) *domain.ERPQueueEntry {
	if model == nil {
		return nil
	}
	return &domain.ERPQueueEntry{
		ID:        model.ID,
		PaymentID: model.PaymentID,
		Attempts:  model.Attempts,
		NextTryAt: model.NextTryAt,
		CreatedAt: model.CreatedAt,
	}
}
