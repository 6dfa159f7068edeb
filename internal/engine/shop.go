package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/websocket"
)

type ShopItemInput struct {
	Name         string
	Description  string
	CostPoints   int
	LimitPerUser *int // nil means unlimited
}

// CreateShopItem adds a redeemable item to the group's shop. Hosts only.
func (e *Engine) CreateShopItem(ctx context.Context, callerID, groupID int64, in ShopItemInput) (*model.ShopItem, error) {
	name, err := cleanName(in.Name, "item name")
	if err != nil {
		return nil, err
	}
	if in.CostPoints <= 0 {
		return nil, model.InvalidInput("cost points must be positive")
	}
	if in.CostPoints > model.MaxPoints {
		return nil, model.InvalidInput(fmt.Sprintf("cost points must be at most %d", model.MaxPoints))
	}
	if in.LimitPerUser != nil && *in.LimitPerUser <= 0 {
		return nil, model.InvalidInput("limit per user must be positive when set")
	}

	if _, err := e.requireHost(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	item, err := e.shop.CreateItem(ctx, groupID, name, strings.TrimSpace(in.Description), in.CostPoints, in.LimitPerUser)
	if err != nil {
		return nil, transient("create shop item", err)
	}
	e.broadcast(websocket.NewMessage(groupID, "shop_item", "created", item.ID, nil))
	return item, nil
}

// ListShopItems returns the group's shop. Members only.
func (e *Engine) ListShopItems(ctx context.Context, accountID, groupID int64) ([]model.ShopItem, error) {
	if _, _, err := e.requireMember(ctx, groupID, accountID); err != nil {
		return nil, err
	}
	items, err := e.shop.ListItems(ctx, groupID)
	if err != nil {
		return nil, transient("list shop items", err)
	}
	return nonNil(items), nil
}

// DeleteShopItem removes an item from the shop. Existing receipts stay.
// Hosts only.
func (e *Engine) DeleteShopItem(ctx context.Context, callerID, itemID int64) error {
	item, err := e.shop.GetItem(ctx, itemID)
	if err != nil {
		return transient("get shop item", err)
	}
	if item == nil {
		return model.ErrItemNotFound
	}
	if _, err := e.requireHost(ctx, item.GroupID, callerID); err != nil {
		return err
	}
	if err := e.shop.DeleteItem(ctx, itemID); err != nil {
		return transient("delete shop item", err)
	}
	e.broadcast(websocket.NewMessage(item.GroupID, "shop_item", "deleted", itemID, nil))
	return nil
}

// Purchase spends the item's cost from the account's balance in the
// item's group and records a receipt, atomically.
func (e *Engine) Purchase(ctx context.Context, accountID, itemID int64) (*model.PurchaseResult, error) {
	res, err := e.shop.Purchase(ctx, itemID, accountID, e.now())
	if err != nil {
		e.metrics.Purchase(resultLabel(err), 0)
		return nil, transient("purchase", err)
	}
	e.metrics.Purchase("ok", res.Record.CostPoints)
	e.logger.Info("purchase", "item_id", itemID, "account_id", accountID, "cost", res.Record.CostPoints, "balance", res.Balance)
	e.broadcast(websocket.NewMessage(res.Record.GroupID, "shop_item", "purchased", itemID, map[string]any{
		"account_id": accountID,
		"balance":    res.Balance,
	}))
	return res, nil
}

// PurchaseHistory lists every receipt in the group. Members only.
func (e *Engine) PurchaseHistory(ctx context.Context, callerID, groupID int64) ([]model.PurchaseRecord, error) {
	if _, _, err := e.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	out, err := e.shop.ListPurchasesByGroup(ctx, groupID)
	if err != nil {
		return nil, transient("list group purchases", err)
	}
	return nonNil(out), nil
}

// MyPurchases lists the account's receipts across all its groups.
func (e *Engine) MyPurchases(ctx context.Context, accountID int64) ([]model.PurchaseRecord, error) {
	out, err := e.shop.ListPurchasesByAccount(ctx, accountID)
	if err != nil {
		return nil, transient("list my purchases", err)
	}
	return nonNil(out), nil
}
