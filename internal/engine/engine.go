// Package engine implements the quest and points ledger workflows:
// membership roles, quests and their availability windows, the
// submit/review lifecycle, shop purchases and invite codes.
//
// Host and owner checks are made here, not in the HTTP layer.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/homequest/internal/metrics"
	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/proof"
	"github.com/dukerupert/homequest/internal/store"
	"github.com/dukerupert/homequest/internal/websocket"
)

// Notifier receives group events after they commit.
type Notifier interface {
	Broadcast(msg websocket.Message)
	Disconnect(groupID, accountID int64)
	DisconnectGroup(groupID int64)
}

type Engine struct {
	accounts    *store.AccountStore
	groups      *store.GroupStore
	quests      *store.QuestStore
	submissions *store.SubmissionStore
	shop        *store.ShopStore

	proofs   proof.Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, mainly for tests of availability windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(db *sql.DB, proofs proof.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		accounts:    store.NewAccountStore(db),
		groups:      store.NewGroupStore(db),
		quests:      store.NewQuestStore(db),
		submissions: store.NewSubmissionStore(db),
		shop:        store.NewShopStore(db),
		proofs:      proofs,
		logger:      logger.With("component", "engine"),
		now:         time.Now,
		newCode:     newInviteCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) broadcast(msg websocket.Message) {
	if e.notifier != nil {
		e.notifier.Broadcast(msg)
	}
}

// transient marks unexpected store failures so callers can tell them
// apart from business-rule errors. Nothing was committed when this fires.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrTransient, op, err)
}

// --- Accounts ---

func (e *Engine) CreateAccount(ctx context.Context, name, passwordHash string) (*model.Account, error) {
	name, err := cleanName(name, "name")
	if err != nil {
		return nil, err
	}
	a, err := e.accounts.Create(ctx, name, passwordHash)
	if err != nil {
		return nil, transient("create account", err)
	}
	e.logger.Info("account created", "account_id", a.ID)
	return a, nil
}

func (e *Engine) Account(ctx context.Context, id int64) (*model.Account, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, transient("get account", err)
	}
	if a == nil {
		return nil, model.ErrAccountNotFound
	}
	return a, nil
}

// --- Authorization predicates ---

func (e *Engine) group(ctx context.Context, groupID int64) (*model.Group, error) {
	g, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, transient("get group", err)
	}
	if g == nil {
		return nil, model.ErrGroupNotFound
	}
	return g, nil
}

// IsOwner reports whether the account created the group.
func (e *Engine) IsOwner(ctx context.Context, groupID, accountID int64) (bool, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return false, err
	}
	return g.OwnerAccountID == accountID, nil
}

// IsHost reports whether the account may manage the group. The owner is
// always a host even if its membership row says otherwise.
func (e *Engine) IsHost(ctx context.Context, groupID, accountID int64) (bool, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return false, err
	}
	return e.isHost(ctx, g, accountID)
}

// Membership returns the account's membership row in the group.
func (e *Engine) Membership(ctx context.Context, groupID, accountID int64) (*model.Membership, error) {
	_, m, err := e.requireMember(ctx, groupID, accountID)
	return m, err
}

func (e *Engine) isHost(ctx context.Context, g *model.Group, accountID int64) (bool, error) {
	if g.OwnerAccountID == accountID {
		return true, nil
	}
	m, err := e.groups.GetMembership(ctx, g.ID, accountID)
	if err != nil {
		return false, transient("get membership", err)
	}
	return m != nil && m.IsHost, nil
}

// requireMember returns the group and the caller's membership.
func (e *Engine) requireMember(ctx context.Context, groupID, accountID int64) (*model.Group, *model.Membership, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	m, err := e.groups.GetMembership(ctx, groupID, accountID)
	if err != nil {
		return nil, nil, transient("get membership", err)
	}
	if m == nil {
		return nil, nil, model.ErrNotAMember
	}
	return g, m, nil
}

func (e *Engine) requireHost(ctx context.Context, groupID, accountID int64) (*model.Group, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := e.isHost(ctx, g, accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrPermissionDenied.WithMessage("only a host can do this")
	}
	return g, nil
}

func (e *Engine) requireOwner(ctx context.Context, groupID, accountID int64) (*model.Group, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerAccountID != accountID {
		return nil, model.ErrPermissionDenied.WithMessage("only the group owner can do this")
	}
	return g, nil
}

// releaseProofs deletes artifacts left behind by removed rows. Failures
// are logged and otherwise ignored.
func (e *Engine) releaseProofs(ctx context.Context, refs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := e.proofs.Delete(ctx, ref); err != nil {
			e.metrics.ProofCleanupFailed()
			e.logger.Warn("delete proof artifact", "ref", ref, "error", err)
		}
	}
}
