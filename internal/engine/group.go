package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/websocket"
)

const maxNameLength = 100

func cleanName(s, field string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", model.InvalidInput(field + " is required")
	}
	if utf8.RuneCountInString(s) > maxNameLength {
		return "", model.InvalidInput(fmt.Sprintf("%s must be at most %d characters", field, maxNameLength))
	}
	return s, nil
}

// CreateGroup creates a group owned by the account. The owner starts as a
// host member with a zero balance.
func (e *Engine) CreateGroup(ctx context.Context, accountID int64, name string) (*model.Group, error) {
	name, err := cleanName(name, "group name")
	if err != nil {
		return nil, err
	}
	if _, err := e.Account(ctx, accountID); err != nil {
		return nil, err
	}
	g, err := e.groups.Create(ctx, name, accountID)
	if err != nil {
		return nil, transient("create group", err)
	}
	e.logger.Info("group created", "group_id", g.ID, "owner_id", accountID)
	return g, nil
}

// GroupDetail returns the group and its members. Members only.
func (e *Engine) GroupDetail(ctx context.Context, accountID, groupID int64) (*model.GroupDetail, error) {
	g, _, err := e.requireMember(ctx, groupID, accountID)
	if err != nil {
		return nil, err
	}
	d, err := e.groups.Detail(ctx, groupID)
	if err != nil {
		return nil, transient("group detail", err)
	}
	if d == nil {
		return nil, model.ErrGroupNotFound
	}
	// Invite codes are only shown to hosts.
	ok, err := e.isHost(ctx, g, accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		d.InviteCode = nil
	}
	return d, nil
}

// ListGroups returns every group the account belongs to with its balance.
func (e *Engine) ListGroups(ctx context.Context, accountID int64) ([]model.MembershipSummary, error) {
	out, err := e.groups.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, transient("list groups", err)
	}
	if out == nil {
		out = []model.MembershipSummary{}
	}
	return out, nil
}

// DeleteGroup removes the group and everything scoped to it. Owner only.
func (e *Engine) DeleteGroup(ctx context.Context, callerID, groupID int64) error {
	if _, err := e.requireOwner(ctx, groupID, callerID); err != nil {
		return err
	}
	refs, err := e.groups.ProofRefs(ctx, groupID)
	if err != nil {
		return transient("list group proofs", err)
	}
	if err := e.groups.Delete(ctx, groupID); err != nil {
		return transient("delete group", err)
	}
	e.logger.Info("group deleted", "group_id", groupID)

	e.broadcast(websocket.NewMessage(groupID, "group", "deleted", groupID, nil))
	if e.notifier != nil {
		e.notifier.DisconnectGroup(groupID)
	}
	e.releaseProofs(ctx, refs)
	return nil
}

// SetHost grants or revokes host authority. Owner only; the owner's own
// role is fixed.
func (e *Engine) SetHost(ctx context.Context, callerID, groupID, targetID int64, host bool) (*model.Membership, error) {
	g, err := e.requireOwner(ctx, groupID, callerID)
	if err != nil {
		return nil, err
	}
	if targetID == g.OwnerAccountID {
		return nil, model.InvalidInput("the owner's role cannot be changed")
	}
	m, err := e.groups.SetHost(ctx, groupID, targetID, host)
	if err != nil {
		return nil, transient("set host", err)
	}
	e.broadcast(websocket.NewMessage(groupID, "member", "role_changed", targetID, map[string]any{"is_host": host}))
	return m, nil
}

// RemoveMember removes another member from the group. Owner only. The
// member's balance is discarded with the membership.
func (e *Engine) RemoveMember(ctx context.Context, callerID, groupID, targetID int64) error {
	g, err := e.requireOwner(ctx, groupID, callerID)
	if err != nil {
		return err
	}
	if targetID == g.OwnerAccountID {
		return model.InvalidInput("the owner cannot be removed from the group")
	}
	return e.dropMember(ctx, groupID, targetID, "removed")
}

// Leave removes the caller's own membership. Owners must delete the
// group instead.
func (e *Engine) Leave(ctx context.Context, accountID, groupID int64) error {
	g, _, err := e.requireMember(ctx, groupID, accountID)
	if err != nil {
		return err
	}
	if g.OwnerAccountID == accountID {
		return model.InvalidInput("the owner cannot leave; delete the group instead")
	}
	return e.dropMember(ctx, groupID, accountID, "left")
}

func (e *Engine) dropMember(ctx context.Context, groupID, accountID int64, action string) error {
	removed, err := e.groups.RemoveMember(ctx, groupID, accountID)
	if err != nil {
		return transient("remove member", err)
	}
	if !removed {
		return model.ErrNotAMember
	}
	e.logger.Info("member "+action, "group_id", groupID, "account_id", accountID)
	if e.notifier != nil {
		e.notifier.Disconnect(groupID, accountID)
	}
	e.broadcast(websocket.NewMessage(groupID, "member", action, accountID, nil))
	return nil
}
