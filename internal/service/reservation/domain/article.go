// internal/service/reservation/domain/article.go
package domain

// Article 是库存台账中的一个商品条目。
// OnHand 是盘点确认过的实物库存，只有结账提交和补货会改变它。
type Article struct {
	ID     string
	OnHand int
}

// Decrement 在结账提交时扣减实物库存。
// 调用方必须已经在本商品的排他区内完成了 qty <= OnHand 的校验；
// 这里再做一次防御性检查，扣成负数说明排他逻辑出了 bug。
func (a *Article) Decrement(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > a.OnHand {
		return ErrLedgerCorrupted
	}
	a.OnHand -= qty
	return nil
}

// Restock 补货入库，走与扣减相同的修改路径
func (a *Article) Restock(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	a.OnHand += qty
	return nil
}
