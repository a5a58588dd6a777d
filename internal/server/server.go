package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goto/salt/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port int    `mapstructure:"port" default:"8080"`
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RecordService is the slice of the record service the API exposes.
type RecordService interface {
	GetByID(ctx context.Context, recordID string) (record.Record, error)
	GetRevision(ctx context.Context, recordID, recordHash string) (record.Revision, error)
	TriggerUpdated(ctx context.Context, recordID, reason string) error
}

// ResourceService is the slice of the resource service the API exposes.
type ResourceService interface {
	ApplyLinkCheck(ctx context.Context, remote resource.RemoteResource) error
	GetByRecord(ctx context.Context, recordID string) ([]resource.Resource, error)
}

// LinkCheckNotifier schedules the fan-out reaction to a link check event.
type LinkCheckNotifier interface {
	EnqueueLinkCheckedJob(ctx context.Context, linkID string) error
}

type Deps struct {
	Config       Config
	RecordSvc    RecordService
	ResourceSvc  ResourceService
	Discovery    record.DiscoveryRepository
	LinkNotifier LinkCheckNotifier
	Logger       log.Logger
}

// Serve runs the HTTP API until the context is canceled, then drains with a
// short grace period.
func Serve(ctx context.Context, deps Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNoop()
	}

	handlers := &handlers{
		recordSvc:    deps.RecordSvc,
		resourceSvc:  deps.ResourceSvc,
		discovery:    deps.Discovery,
		linkNotifier: deps.LinkNotifier,
		logger:       logger,
	}

	srv := &http.Server{
		Addr:           deps.Config.Addr(),
		Handler:        otelhttp.NewHandler(newRouter(handlers), "geocat-api"),
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(h *handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/records/{id}", func(r chi.Router) {
			r.Get("/", h.getRecord)
			r.Get("/resources", h.listRecordResources)
			r.Get("/revisions/{hash}", h.getRevision)
			r.Post("/consolidate", h.consolidateRecord)
		})
		r.Post("/hooks/link-checked", h.linkChecked)
		r.Get("/search", h.search)
	})

	return r
}
