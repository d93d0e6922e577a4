// Package items implements the HTTP surface for item listing, scoped
// reprocessing, and result export (spec §4.7, §6).
package items

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/api/respond"
	"github.com/priceline/replacement-pricer/server/internal/api/validate"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/principal"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/reprocess"
)

type Handler struct {
	svc       *reprocess.Service
	registry  *registry.Registry
	resolvers principal.Resolver
	log       zerolog.Logger
}

func NewHandler(svc *reprocess.Service, reg *registry.Registry, resolver principal.Resolver, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, registry: reg, resolvers: resolver, log: log}
}

func (h *Handler) authenticate(r *http.Request) (principal.Principal, error) {
	apiKey, err := principal.ExtractAPIKey(r)
	if err != nil {
		return principal.Principal{}, err
	}
	return h.resolvers.Resolve(r.Context(), apiKey)
}

// authorizeJob fetches the job and rejects the request (as not-found, to
// avoid confirming the job's existence to a non-owner) unless the caller is
// its owner or an admin — job-scoped mutations (reprocess, export) must not
// leak across owners just because the caller guesses a job_id.
func (h *Handler) authorizeJob(r *http.Request, p principal.Principal, jobID string) error {
	job, err := h.registry.Get(r.Context(), jobID)
	if err != nil {
		return err
	}
	if !p.Admin && job.OwnerID != p.OwnerID {
		return model.ErrNotFound
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// List handles GET /api/jobs/{jobId}/items?status=&cursor=&page_size=&owner=&any=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]
	q := r.URL.Query()

	pageSize, err := validate.PageSize(q.Get("page_size"))
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	statuses, err := validate.ItemStatuses(q.Get("status"), splitCSV)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	ownerID, any := principal.EffectiveOwner(p, q.Get("owner"), q.Get("any") == "true")
	filter := model.ItemFilter{JobID: jobID, OwnerID: ownerID, Any: any, Statuses: statuses}

	page, err := h.svc.ListItems(r.Context(), filter, q.Get("cursor"), pageSize)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": page.Items, "next_cursor": page.NextCursor,
	})
}

// ListPending handles GET /api/items/pending?owner=&any=&job_type=&cursor=&page_size=
// — the global, cross-job PENDING queue view (spec §6: list_pending).
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	q := r.URL.Query()

	pageSize, err := validate.PageSize(q.Get("page_size"))
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	ownerID, any := principal.EffectiveOwner(p, q.Get("owner"), q.Get("any") == "true")
	filter := model.ItemFilter{
		OwnerID: ownerID, Any: any, JobType: model.JobType(q.Get("job_type")),
		Statuses: []model.ItemStatus{model.ItemPending},
	}

	page, err := h.svc.ListItems(r.Context(), filter, q.Get("cursor"), pageSize)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": page.Items, "next_cursor": page.NextCursor,
	})
}

type reprocessRequest struct {
	Scope         string   `json:"scope"`
	ItemIDs       []string `json:"item_ids,omitempty"`
	Statuses      []string `json:"statuses,omitempty"`
	ResetAttempts bool     `json:"reset_attempts"`
}

// Reprocess handles POST /api/jobs/{jobId}/reprocess.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]
	if err := h.authorizeJob(r, p, jobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}

	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	scope := reprocess.Scope(req.Scope)
	var statuses []model.ItemStatus
	if scope == reprocess.ScopeStatusFilter {
		parsed, err := validate.ItemStatuses(strings.Join(req.Statuses, ","), splitCSV)
		if err != nil {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		statuses = parsed
	}

	n, err := h.svc.Reprocess(r.Context(), reprocess.Request{
		JobID: jobID, Scope: scope, ItemIDs: req.ItemIDs, Statuses: statuses,
		ResetAttempts: req.ResetAttempts, ActorID: p.OwnerID,
	})
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"reprocessed_count": n})
}

// Export handles GET /api/jobs/{jobId}/export?format=&include_errors=
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]
	if err := h.authorizeJob(r, p, jobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	q := r.URL.Query()

	format := reprocess.FormatTabular
	contentType := "text/csv"
	if q.Get("format") == "tsv" {
		format = reprocess.FormatDelimited
		contentType = "text/tab-separated-values"
	}
	includeErrors := q.Get("include_errors") != "false"

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+jobID+"-export.csv\"")
	w.WriteHeader(http.StatusOK)
	if err := h.svc.Export(r.Context(), jobID, format, includeErrors, w); err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("export stream failed after headers sent")
	}
}
