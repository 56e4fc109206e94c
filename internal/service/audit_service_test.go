package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/union-api/internal/models"
)

type flakyAuditStore struct {
	mu       sync.Mutex
	failures int
	saved    []*models.AuditLog
}

func (s *flakyAuditStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("db unavailable")
	}
	s.saved = append(s.saved, log)
	return nil
}

func (s *flakyAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestAuditServiceWritesAsynchronously(t *testing.T) {
	store := &flakyAuditStore{failures: 1}
	svc := NewAuditService(store, nil, nil, AuditConfig{Workers: 1, BufferSize: 8, Retries: 2, RetryDelay: time.Millisecond})
	svc.Start(context.Background())

	entry := &models.AuditLog{Action: models.AuditActionVoteCast, Resource: models.AuditResourceElection}
	require.NoError(t, svc.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	svc.Stop()
}

func TestAuditServiceFlushesOnStop(t *testing.T) {
	store := &flakyAuditStore{}
	svc := NewAuditService(store, nil, nil, AuditConfig{Workers: 2, BufferSize: 32})
	svc.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionLogin, Resource: models.AuditResourceAuth}))
	}
	svc.Stop()

	assert.Equal(t, 10, store.count())
}

func TestAuditServiceDropsWhenNotRunning(t *testing.T) {
	svc := NewAuditService(&flakyAuditStore{}, NewMetricsService(), nil, AuditConfig{})

	err := svc.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionLogin})
	assert.Error(t, err)
}

func TestRecordAuditCarriesRequestMeta(t *testing.T) {
	audit := &auditRecorder{}
	ctx := WithRequestMeta(context.Background(), RequestMeta{IP: "10.0.0.1", UserAgent: "curl/8"})

	recordAudit(ctx, audit, nil, adminIdentity, models.AuditActionElectionDelete, models.AuditResourceElection, "e1", map[string]string{"k": "v"})
	recordAudit(ctx, audit, nil, &models.Identity{ID: "ghost", AdHoc: true}, models.AuditActionVoteCast, models.AuditResourceElection, "e1", nil)

	require.Len(t, audit.entries, 2)
	first := audit.entries[0]
	assert.Equal(t, "admin-1", *first.UserID)
	assert.Equal(t, "e1", *first.ResourceID)
	assert.Equal(t, "10.0.0.1", first.IPAddress)
	assert.JSONEq(t, `{"k":"v"}`, string(first.NewValues))
	assert.Nil(t, audit.entries[1].UserID)
}
