package downloader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fetchbox/internal/admission"
	"fetchbox/internal/domain"
	"fetchbox/internal/registry"
	"fetchbox/internal/swarm"
)

// Manager executes admitted jobs. Each launch registers the job (queued)
// and runs its retrieval on a worker goroutine, bounded by a concurrency
// cap; uploads run synchronously on the caller. All state reporting goes
// through the job registry.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	LaunchHTTP(job domain.Job) (domain.Job, error)
	LaunchTorrent(job domain.Job, source admission.TorrentSource) (domain.Job, error)
	RunUpload(job domain.Job, data []byte) (domain.Job, error)
}

type Config struct {
	MaxConcurrent  int
	SampleInterval time.Duration
	HTTPClient     *http.Client
	Logger         *logrus.Logger
}

type manager struct {
	cfg      Config
	registry *registry.Registry
	swarm    swarm.Client

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(cfg Config, reg *registry.Registry, swarmClient swarm.Client) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = 500 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		// No client-level timeout: transfers may legitimately run for
		// hours, the job context bounds them instead.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:      cfg,
		registry: reg,
		swarm:    swarmClient,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("download manager started, %d slots", cap(m.sem))
	return nil
}

// Shutdown interrupts every running job and waits for the workers to
// record their cancellations.
func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("download manager stopped")
}

func (m *manager) LaunchHTTP(job domain.Job) (domain.Job, error) {
	return m.launch(job, m.runHTTP)
}

func (m *manager) LaunchTorrent(job domain.Job, source admission.TorrentSource) (domain.Job, error) {
	return m.launch(job, func(ctx context.Context, job domain.Job) {
		m.runTorrent(ctx, job, source)
	})
}

type runFunc func(ctx context.Context, job domain.Job)

// launch registers the job and hands it to a worker. The worker waits for
// a free slot; a cancellation that lands while it is still waiting is
// recorded without the job ever starting.
func (m *manager) launch(job domain.Job, run runFunc) (domain.Job, error) {
	if m.ctx == nil {
		return domain.Job{}, errors.New("manager not started")
	}

	jobCtx, cancel := context.WithCancel(m.ctx)
	created := m.registry.Create(job, cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-jobCtx.Done():
			m.finishCancelled(created.ID)
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			run(jobCtx, created)
		}
	}()
	return created, nil
}

// finishCancelled records an engine-observed cancellation. When the user
// already cancelled through the registry the job is terminal and the
// transition is a silent no-op.
func (m *manager) finishCancelled(id string) {
	m.registry.Transition(id, domain.JobStatusCancelled, func(j *domain.Job) {
		if j.Message == "" {
			j.Message = "cancelled"
		}
	})
}

// failJob moves the job to error with the failure message. Late failures
// racing a cancellation are dropped by the registry's transition gate.
func (m *manager) failJob(id string, failErr error) {
	if _, err := m.registry.Transition(id, domain.JobStatusError, func(j *domain.Job) {
		j.Message = failErr.Error()
	}); err != nil {
		return
	}
	m.cfg.Logger.WithField("job_id", id).Error(failErr.Error())
}

func (m *manager) currentJob(id string) domain.Job {
	job, _ := m.registry.Get(id)
	return job
}

var _ Manager = (*manager)(nil)
