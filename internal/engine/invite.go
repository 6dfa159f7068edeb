package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/store"
	"github.com/dukerupert/homequest/internal/websocket"
)

const maxInviteCodeAttempts = 10

// newInviteCode returns 8 upper-case hex characters.
func newInviteCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// GetOrCreateInviteCode returns the group's current code, creating one if
// the group has none. Hosts only.
func (e *Engine) GetOrCreateInviteCode(ctx context.Context, callerID, groupID int64) (string, error) {
	g, err := e.requireHost(ctx, groupID, callerID)
	if err != nil {
		return "", err
	}
	if g.InviteCode != nil {
		return *g.InviteCode, nil
	}
	return e.assignInviteCode(ctx, groupID)
}

// RegenerateInviteCode replaces the group's code. The old code stops
// working immediately. Hosts only.
func (e *Engine) RegenerateInviteCode(ctx context.Context, callerID, groupID int64) (string, error) {
	if _, err := e.requireHost(ctx, groupID, callerID); err != nil {
		return "", err
	}
	return e.assignInviteCode(ctx, groupID)
}

func (e *Engine) assignInviteCode(ctx context.Context, groupID int64) (string, error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return "", transient("generate invite code", err)
		}
		inUse, err := e.groups.InviteCodeInUse(ctx, code)
		if err != nil {
			return "", transient("check invite code", err)
		}
		if inUse {
			continue
		}
		err = e.groups.SetInviteCode(ctx, groupID, code)
		if errors.Is(err, store.ErrInviteCodeInUse) {
			continue
		}
		if err != nil {
			return "", transient("set invite code", err)
		}
		e.logger.Info("invite code issued", "group_id", groupID)
		return code, nil
	}
	return "", transient("assign invite code", fmt.Errorf("no free code after %d attempts", maxInviteCodeAttempts))
}

// JoinByCode adds the account to the group holding the code. Joining a
// group the account already belongs to is not an error.
func (e *Engine) JoinByCode(ctx context.Context, accountID int64, code string) (*model.JoinResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, model.ErrInvalidInviteCode
	}
	g, err := e.groups.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, transient("find invite code", err)
	}
	if g == nil {
		return nil, model.ErrInvalidInviteCode
	}
	if _, err := e.Account(ctx, accountID); err != nil {
		return nil, err
	}

	_, created, err := e.groups.AddMember(ctx, g.ID, accountID)
	if err != nil {
		return nil, transient("add member", err)
	}
	if created {
		e.logger.Info("member joined", "group_id", g.ID, "account_id", accountID)
		e.broadcast(websocket.NewMessage(g.ID, "member", "joined", accountID, nil))
	}
	// The joiner is not necessarily a host.
	g.InviteCode = nil
	return &model.JoinResult{Group: *g, AlreadyMember: !created}, nil
}
