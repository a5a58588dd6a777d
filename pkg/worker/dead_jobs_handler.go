package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DeadJobManager exposes the jobs that exhausted their attempts.
type DeadJobManager interface {
	DeadJobs(ctx context.Context, size, offset int) ([]Job, error)
	Resurrect(ctx context.Context, jobIDs []string) error
	ClearDeadJobs(ctx context.Context, jobIDs []string) error
}

const (
	listDeadJobsPath  = "/dead-jobs"
	resurrectJobsPath = "/resurrect-jobs"
	clearJobsPath     = "/clear-jobs"
)

// DeadJobManagementHandler returns a http handler with endpoints for dead job
// management:
//   - /dead-jobs: paginated JSON listing.
//   - /resurrect-jobs: move specified dead jobs back onto the queue.
//   - /clear-jobs: remove specified dead jobs for good.
func DeadJobManagementHandler(mgr DeadJobManager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(
		listDeadJobsPath,
		otelhttp.NewMiddleware("list_dead_jobs")(
			otelhttp.WithRouteTag(listDeadJobsPath, deadJobsHandler(mgr)),
		),
	)
	mux.Handle(
		resurrectJobsPath,
		otelhttp.NewMiddleware("resurrect_jobs")(
			otelhttp.WithRouteTag(resurrectJobsPath, jobsTransformerHandler(func(ctx context.Context, jobIDs []string) error {
				return mgr.Resurrect(ctx, jobIDs)
			})),
		),
	)
	mux.Handle(
		clearJobsPath,
		otelhttp.NewMiddleware("clear_jobs")(
			otelhttp.WithRouteTag(clearJobsPath, jobsTransformerHandler(func(ctx context.Context, jobIDs []string) error {
				return mgr.ClearDeadJobs(ctx, jobIDs)
			})),
		),
	)
	return mux
}

func deadJobsHandler(mgr DeadJobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qry := r.URL.Query()
		size, err := strconv.Atoi(qry.Get("size"))
		if err != nil || size <= 0 {
			size = 20
		}

		offset, _ := strconv.Atoi(qry.Get("offset"))
		if offset <= 0 {
			offset = 0
		}

		jobs, err := mgr.DeadJobs(r.Context(), size, offset)
		if err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, jobs)
	}
}

func jobsTransformerHandler(fn func(context.Context, []string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, err)
			return
		}

		jobIDs := r.Form["job_ids"]
		if len(jobIDs) == 0 {
			writeJSONResponse(w, http.StatusBadRequest, map[string]interface{}{
				"error": "no job IDs specified",
			})
			return
		}

		if err := fn(r.Context(), jobIDs); err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	if err, ok := v.(error); ok {
		v = map[string]interface{}{"error": err.Error()}
	}

	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
