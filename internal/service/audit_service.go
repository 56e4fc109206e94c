package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/pkg/jobs"
)

const auditJobType = "audit.write"

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditLogger is what services record audit entries through.
type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditConfig sizes the asynchronous writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
	// WriteTimeout bounds each insert.
	WriteTimeout time.Duration
}

// AuditService writes audit entries off the request path. Entries that
// cannot be queued are logged and counted, never surfaced to callers.
type AuditService struct {
	store        auditStore
	queue        *jobs.Queue
	metrics      *MetricsService
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewAuditService builds the writer. Call Start before recording.
func NewAuditService(store auditStore, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &AuditService{store: store, metrics: metrics, logger: logger, writeTimeout: cfg.WriteTimeout}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the writer workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// CreateAuditLog queues log for persistence without blocking.
func (s *AuditService) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if log == nil {
		return nil
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log}); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit entry dropped", zap.String("action", log.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	// The parent ctx is cancelled on shutdown after the buffer drains, so the
	// write gets its own deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	return s.store.CreateAuditLog(writeCtx, log)
}

// Stats reports the writer queue counters.
func (s *AuditService) Stats() jobs.Stats {
	return s.queue.Stats()
}
