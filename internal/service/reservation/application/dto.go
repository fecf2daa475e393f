// internal/service/reservation/application/dto.go
package application

// ActiveLine 是购物车视图使用的单行预留信息
type ActiveLine struct {
	ReservationID string `json:"reservation_id"`
	ArticleID     string `json:"article_id"`
	Qty           int    `json:"qty"`
}

// CommittedLine 是一条已兑现为永久扣减的预留
type CommittedLine struct {
	ArticleID string `json:"article_id"`
	Qty       int    `json:"qty"`
}

// CommitResult 是一次结账提交的结果
type CommitResult struct {
	CartID         string          `json:"cart_id"`
	CommittedLines []CommittedLine `json:"committed_lines"`
}
