package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r, err := NewReservation("art-1", "cart-1", 3, now, 10*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StateActive, r.State)
	assert.Equal(t, now.Add(10*time.Minute), r.ExpiresAt)

	_, err = NewReservation("art-1", "cart-1", 0, now, 10*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = NewReservation("art-1", "cart-1", -2, now, 10*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestActiveAtBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r, err := NewReservation("art-1", "cart-1", 1, now, 600*time.Second)
	require.NoError(t, err)

	// 过期前一刻仍占用库存
	assert.True(t, r.ActiveAt(now.Add(599*time.Second)))
	// 正好到达 ExpiresAt 即失效
	assert.False(t, r.ActiveAt(now.Add(600*time.Second)))
	assert.False(t, r.ActiveAt(now.Add(601*time.Second)))
}

func TestTransitionsAreOneWay(t *testing.T) {
	now := time.Now()

	r, err := NewReservation("art-1", "cart-1", 1, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, r.Release())
	assert.Equal(t, StateReleased, r.State)
	assert.ErrorIs(t, r.Expire(), ErrAlreadyTerminal)
	assert.ErrorIs(t, r.Commit(), ErrAlreadyTerminal)
	assert.ErrorIs(t, r.Release(), ErrAlreadyTerminal)

	r, err = NewReservation("art-1", "cart-1", 1, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, r.Expire())
	assert.Equal(t, StateExpired, r.State)
	assert.ErrorIs(t, r.Commit(), ErrAlreadyTerminal)

	r, err = NewReservation("art-1", "cart-1", 1, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, r.Commit())
	assert.Equal(t, StateCommitted, r.State)
	assert.ErrorIs(t, r.Release(), ErrAlreadyTerminal)
}

func TestGrowRefreshesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r, err := NewReservation("art-1", "cart-1", 2, now, 10*time.Minute)
	require.NoError(t, err)

	later := now.Add(5 * time.Minute)
	require.NoError(t, r.Grow(3, later, 10*time.Minute))
	assert.Equal(t, 5, r.Qty)
	assert.Equal(t, later.Add(10*time.Minute), r.ExpiresAt)

	assert.ErrorIs(t, r.Grow(0, later, 10*time.Minute), ErrInvalidQuantity)

	require.NoError(t, r.Release())
	assert.ErrorIs(t, r.Grow(1, later, 10*time.Minute), ErrAlreadyTerminal)
}

func TestArticleDecrement(t *testing.T) {
	a := &Article{ID: "art-1", OnHand: 5}
	require.NoError(t, a.Decrement(3))
	assert.Equal(t, 2, a.OnHand)
	assert.ErrorIs(t, a.Decrement(3), ErrLedgerCorrupted)
	assert.Equal(t, 2, a.OnHand)
}
