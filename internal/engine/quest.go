package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/websocket"
)

type QuestInput struct {
	Name         string
	Description  string
	RewardPoints *int // nil means model.DefaultRewardPoints
	StartTime    *time.Time
	EndTime      *time.Time
}

// IsAvailable reports whether the quest accepts submissions at now. Both
// bounds are optional; the start is inclusive and the end exclusive.
func IsAvailable(q model.Quest, now time.Time) bool {
	if q.StartTime != nil && now.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && !now.Before(*q.EndTime) {
		return false
	}
	return true
}

// CreateQuest defines a quest in the group. Hosts only.
func (e *Engine) CreateQuest(ctx context.Context, callerID, groupID int64, in QuestInput) (*model.Quest, error) {
	name, err := cleanName(in.Name, "quest name")
	if err != nil {
		return nil, err
	}
	reward := model.DefaultRewardPoints
	if in.RewardPoints != nil {
		reward = *in.RewardPoints
	}
	if reward <= 0 {
		return nil, model.InvalidInput("reward points must be positive")
	}
	if reward > model.MaxPoints {
		return nil, model.InvalidInput(fmt.Sprintf("reward points must be at most %d", model.MaxPoints))
	}
	if in.StartTime != nil && in.EndTime != nil && !in.EndTime.After(*in.StartTime) {
		return nil, model.ErrInvalidSchedule
	}

	if _, err := e.requireHost(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	q, err := e.quests.Create(ctx, groupID, name, strings.TrimSpace(in.Description), reward, in.StartTime, in.EndTime)
	if err != nil {
		return nil, transient("create quest", err)
	}
	e.broadcast(websocket.NewMessage(groupID, "quest", "created", q.ID, nil))
	return q, nil
}

// ListQuests returns the group's quests. With activeOnly set, quests
// outside their window are left out. Members only.
func (e *Engine) ListQuests(ctx context.Context, accountID, groupID int64, activeOnly bool) ([]model.Quest, error) {
	if _, _, err := e.requireMember(ctx, groupID, accountID); err != nil {
		return nil, err
	}
	quests, err := e.quests.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, transient("list quests", err)
	}
	out := make([]model.Quest, 0, len(quests))
	now := e.now()
	for _, q := range quests {
		if activeOnly && !IsAvailable(q, now) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// DeleteQuest removes a quest and its submissions. Hosts of the quest's
// group only.
func (e *Engine) DeleteQuest(ctx context.Context, callerID, questID int64) error {
	q, err := e.quest(ctx, questID)
	if err != nil {
		return err
	}
	if _, err := e.requireHost(ctx, q.GroupID, callerID); err != nil {
		return err
	}
	refs, err := e.quests.ProofRefs(ctx, questID)
	if err != nil {
		return transient("list quest proofs", err)
	}
	if err := e.quests.Delete(ctx, questID); err != nil {
		return transient("delete quest", err)
	}
	e.broadcast(websocket.NewMessage(q.GroupID, "quest", "deleted", questID, nil))
	e.releaseProofs(ctx, refs)
	return nil
}

func (e *Engine) quest(ctx context.Context, questID int64) (*model.Quest, error) {
	q, err := e.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, transient("get quest", err)
	}
	if q == nil {
		return nil, model.ErrQuestNotFound
	}
	return q, nil
}
