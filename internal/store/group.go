package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/homequest/internal/model"
)

// ErrInviteCodeInUse is returned by SetInviteCode when another group
// already holds the code.
var ErrInviteCodeInUse = errors.New("invite code already in use")

type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

func scanGroup(s scanner) (*model.Group, error) {
	var g model.Group
	var code sql.NullString
	if err := s.Scan(&g.ID, &g.Name, &g.OwnerAccountID, &code, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.InviteCode = stringPtr(code)
	return &g, nil
}

func scanMembership(s scanner) (*model.Membership, error) {
	var m model.Membership
	var host int
	if err := s.Scan(&m.ID, &m.GroupID, &m.AccountID, &m.Points, &host, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.IsHost = host != 0
	return &m, nil
}

const groupCols = `id, name, owner_account_id, invite_code, created_at, updated_at`
const membershipCols = `id, household_id, account_id, points, is_host, created_at`

// Create inserts the group and the owner's host membership in one transaction.
func (s *GroupStore) Create(ctx context.Context, name string, ownerID int64) (*model.Group, error) {
	var g *model.Group
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO households (name, owner_account_id) VALUES (?, ?)`,
			name, ownerID,
		)
		if err != nil {
			return fmt.Errorf("insert household: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (household_id, account_id, points, is_host) VALUES (?, ?, 0, 1)`,
			id, ownerID,
		); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		g, err = scanGroup(tx.QueryRowContext(ctx, `SELECT `+groupCols+` FROM households WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("read household: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetByID returns nil, nil when the group does not exist.
func (s *GroupStore) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupCols+` FROM households WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return g, nil
}

func (s *GroupStore) GetByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupCols+` FROM households WHERE invite_code = ?`, code)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by invite code: %w", err)
	}
	return g, nil
}

// Delete removes the group. Memberships, quests, submissions, shop items
// and purchase records go with it through ON DELETE CASCADE.
func (s *GroupStore) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete household: %w", err)
		}
		return nil
	})
}

// ProofRefs returns the artifact references still held by the group's
// submissions.
func (s *GroupStore) ProofRefs(ctx context.Context, groupID int64) ([]string, error) {
	return proofRefs(ctx, s.db, `SELECT proof_ref FROM submissions WHERE household_id = ? AND proof_ref IS NOT NULL`, groupID)
}

// Detail returns the group with its full member list in one flat query.
func (s *GroupStore) Detail(ctx context.Context, id int64) (*model.GroupDetail, error) {
	g, err := s.GetByID(ctx, id)
	if err != nil || g == nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, m.points, m.is_host
		 FROM memberships m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE m.household_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	detail := &model.GroupDetail{Group: *g, Members: []model.MemberDetail{}}
	for rows.Next() {
		var md model.MemberDetail
		var host int
		if err := rows.Scan(&md.AccountID, &md.Name, &md.Points, &host); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		md.IsOwner = md.AccountID == g.OwnerAccountID
		md.IsHost = host != 0 || md.IsOwner
		detail.Members = append(detail.Members, md)
	}
	return detail, rows.Err()
}

// ListForAccount returns every group the account belongs to with its balance there.
func (s *GroupStore) ListForAccount(ctx context.Context, accountID int64) ([]model.MembershipSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.owner_account_id, m.points, m.is_host
		 FROM memberships m
		 JOIN households h ON h.id = m.household_id
		 WHERE m.account_id = ?
		 ORDER BY h.name ASC, h.id ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for account: %w", err)
	}
	defer rows.Close()

	var out []model.MembershipSummary
	for rows.Next() {
		var ms model.MembershipSummary
		var ownerID int64
		var host int
		if err := rows.Scan(&ms.GroupID, &ms.GroupName, &ownerID, &ms.Points, &host); err != nil {
			return nil, fmt.Errorf("scan membership summary: %w", err)
		}
		ms.IsOwner = ownerID == accountID
		ms.IsHost = host != 0 || ms.IsOwner
		out = append(out, ms)
	}
	return out, rows.Err()
}

// --- Membership methods ---

// GetMembership returns nil, nil when the account is not a member.
func (s *GroupStore) GetMembership(ctx context.Context, groupID, accountID int64) (*model.Membership, error) {
	return getMembership(ctx, s.db, groupID, accountID)
}

func getMembership(ctx context.Context, q querier, groupID, accountID int64) (*model.Membership, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND account_id = ?`,
		groupID, accountID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// AddMember creates a zero-balance, non-host membership. When the account
// is already a member the existing row is returned with created=false.
func (s *GroupStore) AddMember(ctx context.Context, groupID, accountID int64) (m *model.Membership, created bool, err error) {
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (household_id, account_id, points, is_host) VALUES (?, ?, 0, 0)
			 ON CONFLICT (household_id, account_id) DO NOTHING`,
			groupID, accountID,
		)
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		created = n > 0
		m, err = getMembership(ctx, tx, groupID, accountID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return m, created, nil
}

// RemoveMember deletes the membership and reports whether one existed.
func (s *GroupStore) RemoveMember(ctx context.Context, groupID, accountID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE household_id = ? AND account_id = ?`,
		groupID, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *GroupStore) SetHost(ctx context.Context, groupID, accountID int64, host bool) (*model.Membership, error) {
	var h int
	if host {
		h = 1
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET is_host = ? WHERE household_id = ? AND account_id = ?`,
		h, groupID, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("update host flag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, model.ErrNotAMember
	}
	return s.GetMembership(ctx, groupID, accountID)
}

// --- Invite code methods ---

func (s *GroupStore) InviteCodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM households WHERE invite_code = ?`, code,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return n > 0, nil
}

// SetInviteCode overwrites the group's code. The old code stops resolving
// immediately. Returns ErrInviteCodeInUse on a collision.
func (s *GroupStore) SetInviteCode(ctx context.Context, groupID int64, code string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households SET invite_code = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		code, groupID,
	)
	if isUniqueViolation(err) {
		return ErrInviteCodeInUse
	}
	if err != nil {
		return fmt.Errorf("set invite code: %w", err)
	}
	return nil
}

// --- Ledger methods ---

// Credit adds amount to the member's balance and returns the new balance.
func (s *GroupStore) Credit(ctx context.Context, groupID, accountID int64, amount int) (int, error) {
	var balance int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		balance, err = creditTx(ctx, tx, groupID, accountID, amount)
		return err
	})
	return balance, err
}

// Debit subtracts amount from the member's balance and returns the new
// balance. The debit is rejected whole if it would go below zero.
func (s *GroupStore) Debit(ctx context.Context, groupID, accountID int64, amount int) (int, error) {
	var balance int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		balance, err = debitTx(ctx, tx, groupID, accountID, amount)
		return err
	})
	return balance, err
}

func creditTx(ctx context.Context, q querier, groupID, accountID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, model.InvalidInput("credit amount must be positive")
	}
	if amount > model.MaxPoints {
		return 0, model.InvalidInput(fmt.Sprintf("credit amount must be at most %d", model.MaxPoints))
	}
	var balance int
	err := q.QueryRowContext(ctx,
		`UPDATE memberships SET points = points + ?
		 WHERE household_id = ? AND account_id = ?
		 RETURNING points`,
		amount, groupID, accountID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, model.ErrNotAMember
	}
	if err != nil {
		return 0, fmt.Errorf("credit points: %w", err)
	}
	return balance, nil
}

// debitTx decrements in a single conditional statement so the balance
// check and the write cannot interleave with another debit.
func debitTx(ctx context.Context, q querier, groupID, accountID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, model.InvalidInput("debit amount must be positive")
	}
	if amount > model.MaxPoints {
		return 0, model.InvalidInput(fmt.Sprintf("debit amount must be at most %d", model.MaxPoints))
	}
	var balance int
	err := q.QueryRowContext(ctx,
		`UPDATE memberships SET points = points - ?
		 WHERE household_id = ? AND account_id = ? AND points >= ?
		 RETURNING points`,
		amount, groupID, accountID, amount,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("debit points: %w", err)
	}

	m, err := getMembership(ctx, q, groupID, accountID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, model.ErrNotAMember
	}
	return 0, model.ErrInsufficientPoints
}
