package engine

import (
	"context"
	"errors"

	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/proof"
	"github.com/dukerupert/homequest/internal/websocket"
)

// checkSubmittable loads the quest and confirms the account may submit
// against it right now.
func (e *Engine) checkSubmittable(ctx context.Context, accountID, questID int64) (*model.Quest, error) {
	q, err := e.quest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if _, _, err := e.requireMember(ctx, q.GroupID, accountID); err != nil {
		return nil, err
	}
	if !IsAvailable(*q, e.now()) {
		return nil, model.ErrQuestNotAvailable
	}
	return q, nil
}

// Submit records a pending claim that the account completed the quest.
// proofRef points at an artifact that is already stored.
func (e *Engine) Submit(ctx context.Context, accountID, questID int64, proofRef *string) (*model.Submission, error) {
	q, err := e.checkSubmittable(ctx, accountID, questID)
	if err != nil {
		e.metrics.Submission(resultLabel(err))
		return nil, err
	}
	return e.createSubmission(ctx, accountID, q, proofRef)
}

// SubmitUpload stores the proof artifact and records the submission. The
// artifact is removed again if the submission cannot be recorded.
func (e *Engine) SubmitUpload(ctx context.Context, accountID, questID int64, up proof.Upload) (*model.Submission, error) {
	q, err := e.checkSubmittable(ctx, accountID, questID)
	if err != nil {
		e.metrics.Submission(resultLabel(err))
		return nil, err
	}

	ref, err := e.proofs.Save(ctx, q.GroupID, up)
	if errors.Is(err, proof.ErrUnsupportedType) {
		return nil, model.InvalidInput(err.Error())
	}
	if err != nil {
		return nil, transient("store proof", err)
	}

	sub, err := e.createSubmission(ctx, accountID, q, &ref)
	if err != nil {
		e.releaseProofs(ctx, []string{ref})
		return nil, err
	}
	return sub, nil
}

func (e *Engine) createSubmission(ctx context.Context, accountID int64, q *model.Quest, proofRef *string) (*model.Submission, error) {
	sub, err := e.submissions.Create(ctx, accountID, q.ID, q.GroupID, proofRef, e.now())
	e.metrics.Submission(resultLabel(err))
	if err != nil {
		return nil, transient("create submission", err)
	}
	e.logger.Info("submission created", "submission_id", sub.ID, "quest_id", q.ID, "account_id", accountID)
	e.broadcast(websocket.NewMessage(q.GroupID, "submission", "created", sub.ID, map[string]any{
		"quest_id":   q.ID,
		"account_id": accountID,
	}))
	return sub, nil
}

// Review approves or rejects a pending submission. Hosts of the
// submission's group only. Approval credits the quest reward in the same
// transaction as the status change. The proof artifact is deleted after
// commit; a failed delete is logged and does not affect the result.
func (e *Engine) Review(ctx context.Context, callerID, submissionID int64, approved bool) (*model.ReviewResult, error) {
	sub, err := e.submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if _, err := e.requireHost(ctx, sub.GroupID, callerID); err != nil {
		return nil, err
	}

	res, err := e.submissions.Review(ctx, submissionID, callerID, approved, e.now())
	if err != nil {
		return nil, transient("review submission", err)
	}
	e.metrics.Review(approved, res.Credited)
	e.logger.Info("submission reviewed", "submission_id", submissionID, "status", res.Submission.Status, "reviewer_id", callerID)

	if res.Submission.ProofRef != nil {
		if e.releaseProof(ctx, submissionID, *res.Submission.ProofRef) {
			res.Submission.ProofRef = nil
		}
	}

	e.broadcast(websocket.NewMessage(sub.GroupID, "submission", string(res.Submission.Status), submissionID, map[string]any{
		"account_id": sub.AccountID,
		"balance":    res.Balance,
	}))
	return res, nil
}

// releaseProof deletes a reviewed submission's artifact and clears the
// reference. It reports whether the reference was cleared.
func (e *Engine) releaseProof(ctx context.Context, submissionID int64, ref string) bool {
	ctx = context.WithoutCancel(ctx)
	if err := e.proofs.Delete(ctx, ref); err != nil {
		e.metrics.ProofCleanupFailed()
		e.logger.Warn("delete proof after review", "submission_id", submissionID, "ref", ref, "error", err)
		return false
	}
	if err := e.submissions.ClearProof(ctx, submissionID); err != nil {
		e.logger.Warn("clear proof ref", "submission_id", submissionID, "error", err)
		return false
	}
	return true
}

func (e *Engine) submission(ctx context.Context, id int64) (*model.Submission, error) {
	sub, err := e.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, transient("get submission", err)
	}
	if sub == nil {
		return nil, model.ErrSubmissionNotFound
	}
	return sub, nil
}

// PendingSubmissions lists the group's submissions awaiting review. Hosts only.
func (e *Engine) PendingSubmissions(ctx context.Context, callerID, groupID int64) ([]model.SubmissionDetail, error) {
	if _, err := e.requireHost(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	out, err := e.submissions.ListPending(ctx, groupID)
	if err != nil {
		return nil, transient("list pending submissions", err)
	}
	return nonNil(out), nil
}

// SubmissionHistory lists reviewed submissions, most recent first. Members only.
func (e *Engine) SubmissionHistory(ctx context.Context, callerID, groupID int64) ([]model.SubmissionDetail, error) {
	if _, _, err := e.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	out, err := e.submissions.ListReviewed(ctx, groupID)
	if err != nil {
		return nil, transient("list submission history", err)
	}
	return nonNil(out), nil
}

func (e *Engine) MySubmissions(ctx context.Context, accountID, groupID int64) ([]model.SubmissionDetail, error) {
	if _, _, err := e.requireMember(ctx, groupID, accountID); err != nil {
		return nil, err
	}
	out, err := e.submissions.ListByAccount(ctx, groupID, accountID)
	if err != nil {
		return nil, transient("list my submissions", err)
	}
	return nonNil(out), nil
}

// OpenProof opens a submission's artifact for the submitter or a host of
// the group. Callers must close the artifact body.
func (e *Engine) OpenProof(ctx context.Context, callerID, submissionID int64) (*proof.Artifact, error) {
	sub, err := e.submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.AccountID != callerID {
		if _, err := e.requireHost(ctx, sub.GroupID, callerID); err != nil {
			return nil, err
		}
	}
	noProof := model.ErrSubmissionNotFound.WithMessage("submission has no proof attached")
	if sub.ProofRef == nil {
		return nil, noProof
	}
	a, err := e.proofs.Open(ctx, *sub.ProofRef)
	if errors.Is(err, proof.ErrNotFound) {
		return nil, noProof
	}
	if err != nil {
		return nil, transient("open proof", err)
	}
	return a, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// resultLabel turns an operation error into a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var me *model.Error
	if errors.As(err, &me) {
		return string(me.Code)
	}
	return "error"
}
