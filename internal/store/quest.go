package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homequest/internal/model"
)

type QuestStore struct {
	db *sql.DB
}

func NewQuestStore(db *sql.DB) *QuestStore {
	return &QuestStore{db: db}
}

func scanQuest(s scanner) (*model.Quest, error) {
	var q model.Quest
	var start, end, last sql.NullTime
	err := s.Scan(&q.ID, &q.GroupID, &q.Name, &q.Description, &q.RewardPoints,
		&start, &end, &last, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.StartTime = timePtr(start)
	q.EndTime = timePtr(end)
	q.LastCompletedAt = timePtr(last)
	return &q, nil
}

const questCols = `id, household_id, name, description, reward_points, start_time, end_time, last_completed_at, created_at`

func (s *QuestStore) Create(ctx context.Context, groupID int64, name, description string, reward int, start, end *time.Time) (*model.Quest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO quests (household_id, name, description, reward_points, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		groupID, name, description, reward, nullTime(start), nullTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("insert quest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns nil, nil when the quest does not exist.
func (s *QuestStore) GetByID(ctx context.Context, id int64) (*model.Quest, error) {
	return getQuest(ctx, s.db, id)
}

func getQuest(ctx context.Context, q querier, id int64) (*model.Quest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+questCols+` FROM quests WHERE id = ?`, id)
	quest, err := scanQuest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quest: %w", err)
	}
	return quest, nil
}

// ListByGroup returns the group's quests, newest first. Availability
// filtering is left to the caller since it depends on the clock.
func (s *QuestStore) ListByGroup(ctx context.Context, groupID int64) ([]model.Quest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questCols+` FROM quests WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

// Delete removes the quest and, by cascade, its submissions.
func (s *QuestStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quest: %w", err)
	}
	return nil
}

// ProofRefs returns every stored artifact reference for the quest's
// submissions, so the caller can clean them up after a delete.
func (s *QuestStore) ProofRefs(ctx context.Context, questID int64) ([]string, error) {
	return proofRefs(ctx, s.db, `SELECT proof_ref FROM submissions WHERE quest_id = ? AND proof_ref IS NOT NULL`, questID)
}

func proofRefs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proof refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan proof ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
