package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homequest/internal/model"
)

type SubmissionStore struct {
	db *sql.DB
}

func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func scanSubmission(s scanner) (*model.Submission, error) {
	var sub model.Submission
	var proof sql.NullString
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64
	err := s.Scan(&sub.ID, &sub.AccountID, &sub.QuestID, &sub.GroupID, &sub.Status,
		&proof, &sub.SubmittedAt, &reviewedAt, &reviewedBy)
	if err != nil {
		return nil, err
	}
	sub.ProofRef = stringPtr(proof)
	sub.ReviewedAt = timePtr(reviewedAt)
	sub.ReviewedBy = int64Ptr(reviewedBy)
	return &sub, nil
}

const submissionCols = `id, account_id, quest_id, household_id, status, proof_ref, submitted_at, reviewed_at, reviewed_by`

// Create records a pending submission. It fails with
// model.ErrDuplicateSubmission when the account already holds a pending or
// approved submission for the quest; the partial unique index backs the
// check for concurrent callers.
func (s *SubmissionStore) Create(ctx context.Context, accountID, questID, groupID int64, proofRef *string, submittedAt time.Time) (*model.Submission, error) {
	var sub *model.Submission
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var live int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM submissions
			 WHERE account_id = ? AND quest_id = ? AND status IN ('pending', 'approved')`,
			accountID, questID,
		).Scan(&live); err != nil {
			return fmt.Errorf("count live submissions: %w", err)
		}
		if live > 0 {
			return model.ErrDuplicateSubmission
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO submissions (account_id, quest_id, household_id, status, proof_ref, submitted_at)
			 VALUES (?, ?, ?, 'pending', ?, ?)`,
			accountID, questID, groupID, nullString(proofRef), submittedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return model.ErrDuplicateSubmission
		}
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		sub, err = scanSubmission(tx.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("read submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByID returns nil, nil when the submission does not exist.
func (s *SubmissionStore) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	return getSubmission(ctx, s.db, id)
}

func getSubmission(ctx context.Context, q querier, id int64) (*model.Submission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// Review moves a pending submission to approved or rejected. Approval
// credits the quest's reward to the submitter and stamps the quest's
// last completion time; both happen in the same transaction as the
// status change. The returned balance is the submitter's balance after
// the review.
func (s *SubmissionStore) Review(ctx context.Context, id, reviewerID int64, approved bool, reviewedAt time.Time) (*model.ReviewResult, error) {
	var res model.ReviewResult
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		sub, err := getSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return model.ErrSubmissionNotFound
		}
		if sub.Status != model.SubmissionPending {
			return model.ErrAlreadyReviewed
		}

		status := model.SubmissionRejected
		if approved {
			status = model.SubmissionApproved
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE submissions SET status = ?, reviewed_at = ?, reviewed_by = ?
			 WHERE id = ? AND status = 'pending'`,
			status, reviewedAt.UTC(), reviewerID, id,
		)
		if err != nil {
			return fmt.Errorf("update submission status: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return model.ErrAlreadyReviewed
		}

		if approved {
			quest, err := getQuest(ctx, tx, sub.QuestID)
			if err != nil {
				return err
			}
			if quest == nil {
				return model.ErrQuestNotFound
			}
			res.Balance, err = creditTx(ctx, tx, sub.GroupID, sub.AccountID, quest.RewardPoints)
			if err != nil {
				return err
			}
			res.Credited = quest.RewardPoints
			if _, err := tx.ExecContext(ctx,
				`UPDATE quests SET last_completed_at = ? WHERE id = ?`,
				reviewedAt.UTC(), quest.ID,
			); err != nil {
				return fmt.Errorf("stamp quest completion: %w", err)
			}
		} else {
			m, err := getMembership(ctx, tx, sub.GroupID, sub.AccountID)
			if err != nil {
				return err
			}
			if m != nil {
				res.Balance = m.Points
			}
		}

		updated, err := getSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		res.Submission = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ClearProof drops the artifact reference once the artifact is gone.
func (s *SubmissionStore) ClearProof(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE submissions SET proof_ref = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear proof ref: %w", err)
	}
	return nil
}

const submissionDetailQuery = `SELECT s.id, s.account_id, s.quest_id, s.household_id, s.status, s.proof_ref,
	s.submitted_at, s.reviewed_at, s.reviewed_by, q.name, q.reward_points, a.name
	FROM submissions s
	JOIN quests q ON q.id = s.quest_id
	JOIN accounts a ON a.id = s.account_id`

func scanSubmissionDetail(s scanner) (*model.SubmissionDetail, error) {
	var d model.SubmissionDetail
	var proof sql.NullString
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64
	err := s.Scan(&d.ID, &d.AccountID, &d.QuestID, &d.GroupID, &d.Status,
		&proof, &d.SubmittedAt, &reviewedAt, &reviewedBy,
		&d.QuestName, &d.RewardPoints, &d.AccountName)
	if err != nil {
		return nil, err
	}
	d.ProofRef = stringPtr(proof)
	d.ReviewedAt = timePtr(reviewedAt)
	d.ReviewedBy = int64Ptr(reviewedBy)
	return &d, nil
}

func (s *SubmissionStore) listDetails(ctx context.Context, where, order string, args ...any) ([]model.SubmissionDetail, error) {
	rows, err := s.db.QueryContext(ctx, submissionDetailQuery+` WHERE `+where+` ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []model.SubmissionDetail
	for rows.Next() {
		d, err := scanSubmissionDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListPending returns the group's pending submissions, oldest first.
func (s *SubmissionStore) ListPending(ctx context.Context, groupID int64) ([]model.SubmissionDetail, error) {
	return s.listDetails(ctx, `s.household_id = ? AND s.status = 'pending'`,
		`s.submitted_at ASC, s.id ASC`, groupID)
}

// ListReviewed returns the group's approved and rejected submissions,
// most recently reviewed first.
func (s *SubmissionStore) ListReviewed(ctx context.Context, groupID int64) ([]model.SubmissionDetail, error) {
	return s.listDetails(ctx, `s.household_id = ? AND s.status != 'pending'`,
		`s.reviewed_at DESC, s.id DESC`, groupID)
}

// ListByAccount returns one account's submissions in a group, newest first.
func (s *SubmissionStore) ListByAccount(ctx context.Context, groupID, accountID int64) ([]model.SubmissionDetail, error) {
	return s.listDetails(ctx, `s.household_id = ? AND s.account_id = ?`,
		`s.submitted_at DESC, s.id DESC`, groupID, accountID)
}
