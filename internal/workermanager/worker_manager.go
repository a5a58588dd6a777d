package workermanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/geodatahub/geocat/pkg/worker"
	"github.com/geodatahub/geocat/pkg/worker/pgq"
	"github.com/goto/salt/log"
)

// Manager owns the async job machinery: the postgres backed queue, the worker
// pool and the job handlers tying queue messages to the domain services.
type Manager struct {
	processor      *pgq.Processor
	initDone       atomic.Bool
	worker         Worker
	jobManagerPort int

	recordSvc     RecordService
	resourceSvc   ResourceService
	discoveryRepo record.DiscoveryRepository

	logger log.Logger
}

//go:generate mockery --name=Worker -r --case underscore --with-expecter --structname Worker --filename worker_mock.go --output=./mocks

type Worker interface {
	Register(typ string, h worker.JobHandler) error
	Run(ctx context.Context) error
	Enqueue(ctx context.Context, jobs ...worker.JobSpec) error
}

// RecordService is the slice of the record service the job handlers invoke.
type RecordService interface {
	GetByID(ctx context.Context, recordID string) (record.Record, error)
	Consolidate(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error)
	OnLinkChecked(ctx context.Context, linkID string) ([]string, error)
}

// ResourceService is the slice of the resource service the job handlers
// invoke.
type ResourceService interface {
	EnrichRemoteResource(ctx context.Context, res resource.Resource) error
	MatchFeatureType(ctx context.Context, res resource.Resource) error
}

type Config struct {
	Enabled        bool          `mapstructure:"enabled"`
	WorkerCount    int           `mapstructure:"worker_count" default:"3"`
	PollInterval   time.Duration `mapstructure:"poll_interval" default:"500ms"`
	PGQ            pgq.Config    `mapstructure:"pgq"`
	JobManagerPort int           `mapstructure:"job_manager_port" default:"8085"`
}

type Deps struct {
	Config        Config
	DiscoveryRepo record.DiscoveryRepository
	Logger        log.Logger
}

func New(ctx context.Context, deps Deps) (*Manager, error) {
	cfg := deps.Config
	processor, err := pgq.NewProcessor(ctx, cfg.PGQ)
	if err != nil {
		return nil, fmt.Errorf("new worker manager: %w", err)
	}

	w, err := worker.New(
		processor,
		worker.WithRunConfig(cfg.WorkerCount, cfg.PollInterval),
		worker.WithLogger(deps.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("new worker manager: %w", err)
	}

	return &Manager{
		processor:      processor,
		worker:         w,
		jobManagerPort: cfg.JobManagerPort,
		discoveryRepo:  deps.DiscoveryRepo,
		logger:         deps.Logger,
	}, nil
}

func NewWithWorker(w Worker, deps Deps) *Manager {
	return &Manager{
		worker:        w,
		discoveryRepo: deps.DiscoveryRepo,
		logger:        deps.Logger,
	}
}

// BindServices wires the domain services into the job handlers. The services
// are built after the manager since they enqueue through it.
func (m *Manager) BindServices(recordSvc RecordService, resourceSvc ResourceService) {
	m.recordSvc = recordSvc
	m.resourceSvc = resourceSvc
}

func (m *Manager) Run(ctx context.Context) error {
	if err := m.init(); err != nil {
		return fmt.Errorf("run async worker: init: %w", err)
	}

	if m.jobManagerPort != 0 {
		go func() {
			srv := http.Server{
				Addr:           fmt.Sprintf(":%d", m.jobManagerPort),
				Handler:        worker.DeadJobManagementHandler(m.processor),
				ReadTimeout:    3 * time.Second,
				WriteTimeout:   10 * time.Second,
				MaxHeaderBytes: 1 << 20,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("worker job manager - listen and serve", "err", err)
			}
		}()
	}

	return m.worker.Run(ctx)
}

func (m *Manager) init() error {
	if m.recordSvc == nil || m.resourceSvc == nil {
		return errors.New("services not bound")
	}
	if m.initDone.Load() {
		return nil
	}
	m.initDone.Store(true)

	jobHandlers := map[string]worker.JobHandler{
		jobConsolidateRecord:    m.consolidateRecordHandler(),
		jobLinkChecked:          m.linkCheckedHandler(),
		jobEnrichRemoteResource: m.enrichRemoteResourceHandler(),
		jobMatchFeatureType:     m.matchFeatureTypeHandler(),
		jobIndexRecord:          m.indexRecordHandler(),
	}
	for typ, h := range jobHandlers {
		if err := m.worker.Register(typ, h); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) Close() error {
	if m.processor == nil {
		return nil
	}
	return m.processor.Close()
}
