package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/go-chi/chi/v5"
	"github.com/goto/salt/log"
)

type handlers struct {
	recordSvc    RecordService
	resourceSvc  ResourceService
	discovery    record.DiscoveryRepository
	linkNotifier LinkCheckNotifier
	logger       log.Logger
}

func (h *handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	recordID, _ := url.QueryUnescape(chi.URLParam(r, "id"))

	rec, err := h.recordSvc.GetByID(r.Context(), recordID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) listRecordResources(w http.ResponseWriter, r *http.Request) {
	recordID, _ := url.QueryUnescape(chi.URLParam(r, "id"))
	if recordID == "" {
		h.writeErr(w, record.ErrEmptyRecordID)
		return
	}

	resources, err := h.resourceSvc.GetByRecord(r.Context(), recordID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"resources": resources})
}

func (h *handlers) getRevision(w http.ResponseWriter, r *http.Request) {
	recordID, _ := url.QueryUnescape(chi.URLParam(r, "id"))
	recordHash, _ := url.QueryUnescape(chi.URLParam(r, "hash"))

	rev, err := h.recordSvc.GetRevision(r.Context(), recordID, recordHash)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rev)
}

func (h *handlers) consolidateRecord(w http.ResponseWriter, r *http.Request) {
	recordID, _ := url.QueryUnescape(chi.URLParam(r, "id"))

	if err := h.recordSvc.TriggerUpdated(r.Context(), recordID, "manual"); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "scheduled"})
}

type linkCheckedRequest struct {
	LinkID    string   `json:"link_id"`
	Location  string   `json:"location"`
	Available bool     `json:"available"`
	Type      string   `json:"type"`
	Layers    []string `json:"layers"`
}

// linkChecked is the webhook invoked by the link checker once a location has
// been analyzed. The checked state is stored synchronously; re-consolidation
// of the referencing datasets runs as a background job.
func (h *handlers) linkChecked(w http.ResponseWriter, r *http.Request) {
	var req linkCheckedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed payload"})
		return
	}
	if req.Location == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "location must be set"})
		return
	}

	remote := resource.RemoteResource{
		Location:  req.Location,
		Type:      req.Type,
		Available: req.Available,
		Layers:    req.Layers,
	}
	if err := h.resourceSvc.ApplyLinkCheck(r.Context(), remote); err != nil {
		h.writeErr(w, err)
		return
	}

	linkID := req.LinkID
	if linkID == "" {
		linkID = remote.HashLocation()
	}
	if err := h.linkNotifier.EnqueueLinkCheckedJob(r.Context(), linkID); err != nil {
		h.writeErr(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "scheduled"})
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	qry := r.URL.Query()
	if qry.Get("q") == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "query text must be set"})
		return
	}

	size, _ := strconv.Atoi(qry.Get("size"))
	offset, _ := strconv.Atoi(qry.Get("from"))

	filters := map[string][]string{}
	for _, facet := range []string{"organization", "catalog", "keyword"} {
		if values, ok := qry[facet]; ok && len(values) > 0 {
			filters[facetField(facet)] = values
		}
	}

	results, err := h.discovery.Search(r.Context(), record.SearchConfig{
		Text:       qry.Get("q"),
		Filters:    filters,
		MaxResults: size,
		Offset:     offset,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// facetField maps public filter names onto index fields.
func facetField(facet string) string {
	switch facet {
	case "organization":
		return "organizations"
	case "catalog":
		return "catalogs"
	case "keyword":
		return "keywords"
	default:
		return facet
	}
}

func (h *handlers) writeErr(w http.ResponseWriter, err error) {
	var (
		recordNotFound   record.NotFoundError
		resourceNotFound resource.NotFoundError
		invalid          resource.InvalidError
		discoveryErr     record.DiscoveryError
	)
	switch {
	case errors.As(err, &recordNotFound), errors.As(err, &resourceNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, record.ErrEmptyRecordID), errors.As(err, &invalid):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	case errors.As(err, &discoveryErr):
		h.logger.Error("search backend failure", "err", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "search backend failure"})
	default:
		h.logger.Error("internal error", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal error"})
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
