package model

import "time"

type ShopItem struct {
	ID           int64     `json:"id"`
	GroupID      int64     `json:"group_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CostPoints   int       `json:"cost_points"`
	LimitPerUser *int      `json:"limit_per_user"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseRecord is an immutable receipt. ItemName and CostPoints are
// snapshots taken at purchase time.
type PurchaseRecord struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	GroupID     int64     `json:"group_id"`
	ShopItemID  int64     `json:"shop_item_id"`
	ItemName    string    `json:"item_name"`
	CostPoints  int       `json:"cost_points"`
	PurchasedAt time.Time `json:"purchased_at"`
}

type PurchaseResult struct {
	Record  PurchaseRecord `json:"record"`
	Balance int            `json:"balance"`
}
