// internal/service/payment/infrastructure/adapter/reservation_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/httpclient"
	"poscore/internal/service/payment/domain"
)

// ReservationHTTPAdapter 通过 HTTP 调用预留引擎，实现 CheckoutGateway。
// 服务实例由 Nacos 解析，trace 上下文随请求头透传
type ReservationHTTPAdapter struct {
	client *httpclient.Client
}

func NewReservationHTTPAdapter(client *httpclient.Client) *ReservationHTTPAdapter {
	return &ReservationHTTPAdapter{client: client}
}

type commitResponse struct {
	CartID         string `json:"cart_id"`
	CommittedLines []struct {
		ArticleID string `json:"article_id"`
		Qty       int    `json:"qty"`
	} `json:"committed_lines"`
}

// CommitCart 实现 domain.CheckoutGateway
func (a *ReservationHTTPAdapter) CommitCart(ctx context.Context, cartID string) (*domain.CommittedCart, error) {
	body, err := a.client.CallServiceJSON(ctx, constants.ReservationService, constants.ReservationCommitPath,
		map[string]string{"cart_id": cartID})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusBadRequest {
			// 引擎对空购物车返回 400，对上层是一个业务错误而不是故障
			return nil, domain.ErrCartEmpty
		}
		return nil, errors.Wrap(err, "commit cart via reservation-service")
	}

	var resp commitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode commit response")
	}
	out := &domain.CommittedCart{CartID: resp.CartID}
	for _, line := range resp.CommittedLines {
		out.Lines = append(out.Lines, domain.CommittedLine{ArticleID: line.ArticleID, Qty: line.Qty})
	}
	return out, nil
}
