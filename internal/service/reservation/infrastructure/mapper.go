package infrastructure

import (
	"poscore/internal/service/reservation/domain"
)

// ToDomainArticle 将数据库模型转换为领域模型
func ToDomainArticle(model *ArticleModel) *domain.Article {
	if model == nil {
		return nil
	}
	return &domain.Article{
		ID:     model.ID,
		OnHand: model.OnHand,
	}
}

// FromDomainArticle 将领域模型转换为数据库模型
func FromDomainArticle(dmn *domain.Article) *ArticleModel {
	if dmn == nil {
		return nil
	}
	return &ArticleModel{
		ID:     dmn.ID,
		OnHand: dmn.OnHand,
	}
}

// ToDomainReservation 将数据库模型转换为领域模型
func ToDomainReservation(model *ReservationModel) *domain.Reservation {
	if model == nil {
		return nil
	}
	return &domain.Reservation{
		ID:        model.ID,
		ArticleID: model.ArticleID,
		CartID:    model.CartID,
		Qty:       model.Qty,
		State:     model.State,
		CreatedAt: model.CreatedAt,
		ExpiresAt: model.ExpiresAt,
	}
}

// FromDomainReservation 将领域模型转换为数据库模型
func FromDomainReservation(dmn *domain.Reservation) *ReservationModel {
	if dmn == nil {
		return nil
	}
	return &ReservationModel{
		ID:        dmn.ID,
		ArticleID: dmn.ArticleID,
		CartID:    dmn.CartID,
		Qty:       dmn.Qty,
		State:     dmn.State,
		CreatedAt: dmn.CreatedAt,
		ExpiresAt: dmn.ExpiresAt,
	}
}
