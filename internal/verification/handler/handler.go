// Package handler exposes the verification flow and the review back office
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mobirides/internal/verification/controller"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/policy"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/httputil"
	"mobirides/pkg/requestcontext"
)

// Sessions hands out the per-user controllers.
type Sessions interface {
	Get(ctx context.Context, userID id.UserID, role id.Role) (*controller.Controller, error)
	Peek(userID id.UserID) (*controller.Controller, bool)
}

// Reviewer applies back-office decisions.
type Reviewer interface {
	Approve(ctx context.Context, userID, reviewerID id.UserID) (*models.VerificationData, error)
	Reject(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error)
	RequireReverification(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error)
}

type Handler struct {
	sessions Sessions
	reviewer Reviewer
	logger   *slog.Logger
}

func New(sessions Sessions, reviewer Reviewer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		reviewer: reviewer,
		logger:   logger,
	}
}

// Register mounts the user routes. Callers wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verification", func(r chi.Router) {
		r.Post("/init", h.handleInit)
		r.Get("/", h.handleGet)
		r.Get("/progress", h.handleProgress)
		r.Get("/steps/{step}/navigable", h.handleNavigable)
		r.Patch("/personal-info", h.handleUpdatePersonalInfo)
		r.Post("/documents/complete", h.handleCompleteDocuments)
		r.Post("/selfie/complete", h.handleCompleteSelfie)
		r.Patch("/phone", h.handleUpdatePhone)
		r.Post("/navigate", h.handleNavigate)
		r.Post("/submit", h.handleSubmit)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/reset", h.handleReset)
	})
}

// VerificationResponse pairs the record with its progress projection.
type VerificationResponse struct {
	Verification *models.VerificationData   `json:"verification"`
	Progress     policy.VerificationProgress `json:"progress"`
}

type documentsRequest struct {
	Kinds []string `json:"kinds"`
}

type navigateRequest struct {
	Step string `json:"step"`
}

type navigableResponse struct {
	Step      models.Step `json:"step"`
	Navigable bool        `json:"navigable"`
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeVerification(w, http.StatusOK, ctrl.Data())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeVerification(w, http.StatusOK, ctrl.Data())
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ctrl.Progress())
}

func (h *Handler) handleNavigable(w http.ResponseWriter, r *http.Request) {
	step, err := models.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, navigableResponse{
		Step:      step,
		Navigable: ctrl.CanNavigateToStep(step),
	})
}

func (h *Handler) handleUpdatePersonalInfo(w http.ResponseWriter, r *http.Request) {
	var update models.PersonalInfoUpdate
	if !h.decode(w, r, &update) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.UpdatePersonalInfo(ctx, update)
	})
}

func (h *Handler) handleUpdatePhone(w http.ResponseWriter, r *http.Request) {
	var update models.PhoneVerificationUpdate
	if !h.decode(w, r, &update) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.UpdatePhoneVerification(ctx, update)
	})
}

func (h *Handler) handleCompleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	kinds, err := models.ParseDocumentKinds(req.Kinds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.CompleteDocumentUpload(ctx, requestcontext.UserID(ctx), kinds...)
	})
}

func (h *Handler) handleCompleteSelfie(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.CompleteSelfieVerification(ctx)
	})
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	step, err := models.ParseStep(req.Step)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.NavigateToStep(ctx, step)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.SubmitForReview(ctx)
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, ctrl *controller.Controller) (*models.VerificationData, error) {
		return ctrl.RefreshData(ctx)
	})
}

// handleReset clears the server-side session state. The stored record is
// untouched and the next request reloads it.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := h.sessions.Peek(requestcontext.UserID(r.Context())); ok {
		ctrl.ResetVerification()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, *controller.Controller) (*models.VerificationData, error)) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := fn(r.Context(), ctrl)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeVerification(w, http.StatusOK, data)
}

// session resolves the caller's controller, initializing it on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*controller.Controller, bool) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	ctrl, err := h.sessions.Get(ctx, userID, requestcontext.Role(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid verification request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeVerification(w http.ResponseWriter, status int, data *models.VerificationData) {
	httputil.WriteJSON(w, status, VerificationResponse{
		Verification: data,
		Progress:     policy.Progress(data),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if dErrors.HTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "verification request failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requestcontext.UserID(ctx).String(),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "verification request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
