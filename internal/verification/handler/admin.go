package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
	"mobirides/pkg/platform/httputil"
)

// RegisterAdmin mounts the review routes. Callers guard r with the admin
// token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/verifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/{userID}/approve", h.handleApprove)
		r.Post("/{userID}/reject", h.handleReject)
		r.Post("/{userID}/reverify", h.handleReverify)
	})
}

type decisionRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

type listResponse struct {
	Verifications []*models.VerificationData `json:"verifications"`
	Total         int                        `json:"total"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusSubmitted
	}
	records, err := h.reviewer.ListByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.VerificationData{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Verifications: records, Total: len(records)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(userID, reviewerID id.UserID, _ string) (*models.VerificationData, error) {
		return h.reviewer.Approve(r.Context(), userID, reviewerID)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(userID, reviewerID id.UserID, reason string) (*models.VerificationData, error) {
		return h.reviewer.Reject(r.Context(), userID, reviewerID, reason)
	})
}

func (h *Handler) handleReverify(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(userID, reviewerID id.UserID, reason string) (*models.VerificationData, error) {
		return h.reviewer.RequireReverification(r.Context(), userID, reviewerID, reason)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(userID, reviewerID id.UserID, reason string) (*models.VerificationData, error)) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req decisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	reviewerID, err := id.ParseUserID(req.ReviewerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := fn(userID, reviewerID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.refreshLiveSession(r, userID)
	h.writeVerification(w, http.StatusOK, data)
}

// refreshLiveSession pulls the decision into the user's open session so the
// next read sees it without waiting for the watcher.
func (h *Handler) refreshLiveSession(r *http.Request, userID id.UserID) {
	ctrl, ok := h.sessions.Peek(userID)
	if !ok || !ctrl.Initialized() {
		return
	}
	if _, err := ctrl.RefreshData(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "failed to refresh live verification session",
			"user_id", userID.String(),
			"error", err,
		)
	}
}
