package model

import "time"

type Quest struct {
	ID              int64      `json:"id"`
	GroupID         int64      `json:"group_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	RewardPoints    int        `json:"reward_points"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	LastCompletedAt *time.Time `json:"last_completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

const DefaultRewardPoints = 10

// MaxPoints bounds a single reward, price or ledger movement.
const MaxPoints = 1_000_000

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Live reports whether the status still blocks a new submission for the
// same account and quest.
func (s SubmissionStatus) Live() bool {
	return s == SubmissionPending || s == SubmissionApproved
}

type Submission struct {
	ID          int64            `json:"id"`
	AccountID   int64            `json:"account_id"`
	QuestID     int64            `json:"quest_id"`
	GroupID     int64            `json:"group_id"`
	Status      SubmissionStatus `json:"status"`
	ProofRef    *string          `json:"proof_ref,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy  *int64           `json:"reviewed_by,omitempty"`
}

// SubmissionDetail joins a submission with the names a reviewer needs.
type SubmissionDetail struct {
	Submission
	QuestName    string `json:"quest_name"`
	RewardPoints int    `json:"reward_points"`
	AccountName  string `json:"account_name"`
}

// ReviewResult carries the submitter's balance after the review and the
// points the review credited (zero on rejection).
type ReviewResult struct {
	Submission Submission `json:"submission"`
	Balance    int        `json:"balance"`
	Credited   int        `json:"credited"`
}
