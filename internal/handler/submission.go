package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/model"
	"github.com/dukerupert/homequest/internal/proof"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 1 << 20

type SubmissionHandler struct {
	engine   *engine.Engine
	maxBytes int64
	logger   *slog.Logger
}

func NewSubmissionHandler(e *engine.Engine, maxProofBytes int64, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{engine: e, maxBytes: maxProofBytes, logger: logger}
}

// Create submits the quest for review. A multipart "file" field carries
// the proof photo; requests without one are recorded without proof.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	questID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	accountID := auth.AccountID(r.Context())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		sub, err := h.engine.Submit(r.Context(), accountID, questID, nil)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
		return
	}

	// Leave headroom for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErrorCode(w, http.StatusRequestEntityTooLarge, string(model.CodeInvalidInput), h.tooLarge())
			return
		}
		writeError(w, h.logger, r, model.InvalidInput("invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		sub, err := h.engine.Submit(r.Context(), accountID, questID, nil)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
		return
	}
	if err != nil {
		writeError(w, h.logger, r, model.InvalidInput("invalid file field"))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeErrorCode(w, http.StatusRequestEntityTooLarge, string(model.CodeInvalidInput), h.tooLarge())
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, h.logger, r, fmt.Errorf("read upload: %w", err))
		return
	}
	contentType, err := proof.DetectType(head[:n])
	if err != nil {
		writeError(w, h.logger, r, model.InvalidInput(err.Error()))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, h.logger, r, fmt.Errorf("rewind upload: %w", err))
		return
	}

	sub, err := h.engine.SubmitUpload(r.Context(), accountID, questID, proof.Upload{
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubmissionHandler) tooLarge() string {
	return fmt.Sprintf("proof must be at most %d bytes", h.maxBytes)
}

func (h *SubmissionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.engine.PendingSubmissions)
}

func (h *SubmissionHandler) History(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.engine.SubmissionHistory)
}

func (h *SubmissionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.engine.MySubmissions)
}

type submissionLister func(ctx context.Context, accountID, groupID int64) ([]model.SubmissionDetail, error)

func (h *SubmissionHandler) list(w http.ResponseWriter, r *http.Request, fn submissionLister) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out, err := fn(r.Context(), auth.AccountID(r.Context()), groupID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type reviewRequest struct {
	Approved *bool `json:"approved"`
}

func (h *SubmissionHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if req.Approved == nil {
		writeError(w, h.logger, r, model.InvalidInput("approved is required"))
		return
	}
	res, err := h.engine.Review(r.Context(), auth.AccountID(r.Context()), id, *req.Approved)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Proof streams the submission's photo to its submitter or a host.
func (h *SubmissionHandler) Proof(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.engine.OpenProof(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer a.Body.Close()

	w.Header().Set("Content-Type", a.ContentType)
	if a.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, a.Body); err != nil {
		h.logger.Warn("stream proof", "submission_id", id, "error", err)
	}
}
