package engine

import (
	"context"
)

// Credit adds points to a member's balance and returns the new balance.
func (e *Engine) Credit(ctx context.Context, groupID, accountID int64, amount int) (int, error) {
	balance, err := e.groups.Credit(ctx, groupID, accountID, amount)
	if err != nil {
		return 0, transient("credit", err)
	}
	return balance, nil
}

// Debit removes points from a member's balance. It fails with
// model.ErrInsufficientPoints rather than going below zero.
func (e *Engine) Debit(ctx context.Context, groupID, accountID int64, amount int) (int, error) {
	balance, err := e.groups.Debit(ctx, groupID, accountID, amount)
	if err != nil {
		return 0, transient("debit", err)
	}
	return balance, nil
}
