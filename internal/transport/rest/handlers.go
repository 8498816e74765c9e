package rest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/baechuer/artfront/services/visitor-state/internal/metrics"
	appCtx "github.com/baechuer/artfront/services/visitor-state/internal/pkg/context"
	"github.com/baechuer/artfront/services/visitor-state/internal/pkg/logger"
	"github.com/baechuer/artfront/services/visitor-state/internal/service"
	"github.com/baechuer/artfront/services/visitor-state/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type Handler struct {
	lists      *service.Resolver
	engagement *service.EngagementTracker
	notify     *service.NotificationScheduler
}

func NewHandler(lists *service.Resolver, engagement *service.EngagementTracker, notify *service.NotificationScheduler) *Handler {
	return &Handler{lists: lists, engagement: engagement, notify: notify}
}

// ---- lists ----

func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	ops, kind, ok := h.resolve(w, r)
	if !ok {
		return
	}
	ids, err := ops.FetchList(r.Context())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"kind":  kind,
		"items": ids,
	})
}

func (h *Handler) PostList(w http.ResponseWriter, r *http.Request) {
	var req listActionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	req.Action = strings.ToUpper(strings.TrimSpace(req.Action))
	req.ItemID = strings.TrimSpace(req.ItemID)
	if meta := validateRequest(req); meta != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	ops, kind, ok := h.resolve(w, r)
	if !ok {
		return
	}

	switch req.Action {
	case "TOGGLE":
		if req.ItemID == "" {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", map[string]string{
				"item_id": "is required",
			})
			return
		}
		active, err := ops.Toggle(r.Context(), req.ItemID)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		response.Data(w, http.StatusOK, map[string]any{
			"kind":    kind,
			"item_id": req.ItemID,
			"active":  active,
		})
	case "CLEAR":
		if err := ops.Clear(r.Context()); err != nil {
			handleErr(w, r, err)
			return
		}
		response.Data(w, http.StatusOK, map[string]any{
			"kind":    kind,
			"cleared": true,
		})
	}
}

func (h *Handler) MergeList(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseListKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	id, _ := identityFrom(r)
	n, err := h.lists.Merge(r.Context(), id, kind)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"kind":      kind,
		"activated": n,
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (domain.ListOperations, domain.ListKind, bool) {
	kind, err := domain.ParseListKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleErr(w, r, err)
		return nil, "", false
	}
	id, _ := identityFrom(r)
	ops, err := h.lists.Resolve(id, kind)
	if err != nil {
		handleErr(w, r, err)
		return nil, "", false
	}
	return ops, kind, true
}

// ---- engagement ----
// Writes are best effort: a store failure is logged and reported as
// recorded=false so browsing never breaks on analytics.

func (h *Handler) StartEngagement(w http.ResponseWriter, r *http.Request) {
	var req startEngagementRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id, ok := h.device(w, r)
	if !ok {
		return
	}

	meta := domain.EngagementMeta{
		Referrer:  strings.TrimSpace(req.Referrer),
		SessionID: strings.TrimSpace(req.SessionID),
	}
	if id.Authenticated() {
		meta.UserID = id.UserID.String()
	}

	rec, err := h.engagement.Start(r.Context(), id.DeviceID, req.ItemID, meta)
	if err != nil {
		h.engagementFailed(w, r, "start", err)
		return
	}
	if err := h.engagement.RecordView(r.Context(), id.DeviceID, req.ItemID); err != nil {
		// the engagement itself was stored
		logger.WithCtx(r.Context()).Warn().Err(err).Str("item_id", req.ItemID).Msg("recency update failed")
		metrics.RecordEngagementError("record_view")
	}
	response.Data(w, http.StatusOK, map[string]any{
		"recorded":   true,
		"engagement": rec,
	})
}

func (h *Handler) EndEngagement(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id, ok := h.device(w, r)
	if !ok {
		return
	}

	rec, found, err := h.engagement.End(r.Context(), id.DeviceID, req.ItemID)
	if err != nil {
		h.engagementFailed(w, r, "end", err)
		return
	}
	if !found {
		response.Data(w, http.StatusOK, map[string]any{"recorded": false})
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"recorded":   true,
		"engagement": rec,
	})
}

func (h *Handler) UpdateEngagement(w http.ResponseWriter, r *http.Request) {
	var req updateEngagementRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id, ok := h.device(w, r)
	if !ok {
		return
	}

	patch := domain.EngagementPatch{DurationSeconds: req.DurationSeconds}
	if req.LastInteraction != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.LastInteraction)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", map[string]string{
				"last_interaction": "must be RFC3339",
			})
			return
		}
		patch.LastInteraction = &t
	}

	rec, found, err := h.engagement.Update(r.Context(), id.DeviceID, chi.URLParam(r, "itemID"), patch)
	if err != nil {
		h.engagementFailed(w, r, "update", err)
		return
	}
	if !found {
		response.Data(w, http.StatusOK, map[string]any{"recorded": false})
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"recorded":   true,
		"engagement": rec,
	})
}

func (h *Handler) GetEngagement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.device(w, r)
	if !ok {
		return
	}
	rec, found, err := h.engagement.Get(r.Context(), id.DeviceID, chi.URLParam(r, "itemID"))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	if !found {
		fail(w, r, http.StatusNotFound, "engagement.not_found", "no engagement for item", nil)
		return
	}
	response.Data(w, http.StatusOK, rec)
}

func (h *Handler) ActiveEngagement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.device(w, r)
	if !ok {
		return
	}
	itemID, err := h.engagement.Active(r.Context(), id.DeviceID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	var v *string
	if itemID != "" {
		v = &itemID
	}
	response.Data(w, http.StatusOK, map[string]any{"item_id": v})
}

func (h *Handler) RecentViews(w http.ResponseWriter, r *http.Request) {
	id, ok := h.device(w, r)
	if !ok {
		return
	}
	ids, err := h.engagement.Recent(r.Context(), id.DeviceID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.Data(w, http.StatusOK, map[string]any{"items": ids})
}

// ---- notifications ----

func (h *Handler) ScheduleAbandonedCart(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decodeValid(w, r, &req) {
		return
	}
	id, _ := identityFrom(r)
	if id.Authenticated() {
		fail(w, r, http.StatusConflict, "notification.guest_only", domain.ErrNotificationPath.Error(), nil)
		return
	}
	ok, err := h.notify.Schedule(r.Context(), id.DeviceID, req.ItemID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{"scheduled": ok})
}

// device returns the identity and insists on a device id, since engagement
// state is device scoped on both paths.
func (h *Handler) device(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, _ := identityFrom(r)
	if id.DeviceID == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "device id required", map[string]string{
			"device_id": "send " + deviceIDHeader + " or the " + deviceIDCookie + " cookie",
		})
		return id, false
	}
	return id, true
}

func (h *Handler) engagementFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !errors.Is(err, domain.ErrTransientStore) {
		handleErr(w, r, err)
		return
	}
	metrics.RecordEngagementError(op)
	logger.WithCtx(r.Context()).Warn().Err(err).Str("op", op).Msg("engagement tracking failed")
	response.Data(w, http.StatusAccepted, map[string]any{"recorded": false})
}

func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return false
	}
	if meta := validateRequest(dst); meta != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return false
	}
	return true
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrIdentityMissing):
		fail(w, r, http.StatusUnauthorized, "identity.missing", "device id or session required", nil)
	case errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrInvalidListKind):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)
	case errors.Is(err, domain.ErrMergeNeedsBoth):
		fail(w, r, http.StatusBadRequest, "merge.identity_required", err.Error(), nil)
	case errors.Is(err, domain.ErrTransientStore):
		w.Header().Set("Retry-After", "1")
		fail(w, r, http.StatusServiceUnavailable, "store.unavailable", "store unavailable, retry", map[string]string{
			"retryable": "true",
		})
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
