package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homequest/internal/model"
)

type ShopStore struct {
	db *sql.DB
}

func NewShopStore(db *sql.DB) *ShopStore {
	return &ShopStore{db: db}
}

// --- Shop item methods ---

func scanShopItem(s scanner) (*model.ShopItem, error) {
	var it model.ShopItem
	var limit sql.NullInt64
	err := s.Scan(&it.ID, &it.GroupID, &it.Name, &it.Description, &it.CostPoints, &limit, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	it.LimitPerUser = intPtr(limit)
	return &it, nil
}

const shopItemCols = `id, household_id, name, description, cost_points, limit_per_user, created_at`

func (s *ShopStore) CreateItem(ctx context.Context, groupID int64, name, description string, cost int, limit *int) (*model.ShopItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO shop_items (household_id, name, description, cost_points, limit_per_user)
		 VALUES (?, ?, ?, ?, ?)`,
		groupID, name, description, cost, nullInt(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("insert shop item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem returns nil, nil when the item does not exist.
func (s *ShopStore) GetItem(ctx context.Context, id int64) (*model.ShopItem, error) {
	return getShopItem(ctx, s.db, id)
}

func getShopItem(ctx context.Context, q querier, id int64) (*model.ShopItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+shopItemCols+` FROM shop_items WHERE id = ?`, id)
	it, err := scanShopItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop item: %w", err)
	}
	return it, nil
}

// ListItems returns the group's items ordered by cost, then name.
func (s *ShopStore) ListItems(ctx context.Context, groupID int64) ([]model.ShopItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shopItemCols+` FROM shop_items WHERE household_id = ? ORDER BY cost_points ASC, name ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list shop items: %w", err)
	}
	defer rows.Close()

	var items []model.ShopItem
	for rows.Next() {
		it, err := scanShopItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// DeleteItem removes the item. Its purchase records are kept.
func (s *ShopStore) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete shop item: %w", err)
	}
	return nil
}

// --- Purchase methods ---

func scanPurchase(s scanner) (*model.PurchaseRecord, error) {
	var p model.PurchaseRecord
	err := s.Scan(&p.ID, &p.AccountID, &p.GroupID, &p.ShopItemID, &p.ItemName, &p.CostPoints, &p.PurchasedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const purchaseCols = `id, account_id, household_id, shop_item_id, item_name, cost_points, purchased_at`

// Purchase debits the item's cost from the account's balance in the
// item's group and writes the receipt. Either both land or neither does.
func (s *ShopStore) Purchase(ctx context.Context, itemID, accountID int64, at time.Time) (*model.PurchaseResult, error) {
	var res model.PurchaseResult
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		item, err := getShopItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return model.ErrItemNotFound
		}

		m, err := getMembership(ctx, tx, item.GroupID, accountID)
		if err != nil {
			return err
		}
		if m == nil {
			return model.ErrNotAMember
		}

		if item.LimitPerUser != nil {
			n, err := countPurchases(ctx, tx, itemID, accountID)
			if err != nil {
				return err
			}
			if n >= *item.LimitPerUser {
				return model.ErrPurchaseLimitReached
			}
		}

		res.Balance, err = debitTx(ctx, tx, item.GroupID, accountID, item.CostPoints)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO purchase_records (account_id, household_id, shop_item_id, item_name, cost_points, purchased_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			accountID, item.GroupID, item.ID, item.Name, item.CostPoints, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert purchase record: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		rec, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseCols+` FROM purchase_records WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("read purchase record: %w", err)
		}
		res.Record = *rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *ShopStore) CountPurchases(ctx context.Context, itemID, accountID int64) (int, error) {
	return countPurchases(ctx, s.db, itemID, accountID)
}

func countPurchases(ctx context.Context, q querier, itemID, accountID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_records WHERE shop_item_id = ? AND account_id = ?`,
		itemID, accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count purchases: %w", err)
	}
	return n, nil
}

func (s *ShopStore) listPurchases(ctx context.Context, where string, args ...any) ([]model.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+purchaseCols+` FROM purchase_records WHERE `+where+` ORDER BY purchased_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var records []model.PurchaseRecord
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		records = append(records, *p)
	}
	return records, rows.Err()
}

// ListPurchasesByGroup returns every receipt in the group, newest first.
func (s *ShopStore) ListPurchasesByGroup(ctx context.Context, groupID int64) ([]model.PurchaseRecord, error) {
	return s.listPurchases(ctx, `household_id = ?`, groupID)
}

// ListPurchasesByAccount returns the account's receipts across all groups.
func (s *ShopStore) ListPurchasesByAccount(ctx context.Context, accountID int64) ([]model.PurchaseRecord, error) {
	return s.listPurchases(ctx, `account_id = ?`, accountID)
}
