package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/union-api/internal/dto"
	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.entries, k)
	}
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if strings.HasPrefix(k, prefix) {
			delete(r.entries, k)
		}
	}
	return nil
}

func (r *memoryCacheRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

func TestCacheServiceDisabledIsMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	svc.Set(context.Background(), "k", "v", 0)

	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
	assert.False(t, repo.has("k"))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Get(context.Background(), "k", &out))
	nilSvc.Invalidate(context.Background(), "k")
}

func TestCacheServiceRoundTripAndBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	svc.Set(ctx, "k", map[string]int{"a": 1}, 0)
	var out map[string]int
	require.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, 1, out["a"])

	repo.getErr = errors.New("redis down")
	assert.False(t, svc.Get(ctx, "k", &out))

	repo.getErr = nil
	svc.InvalidatePattern(ctx, "k*")
	assert.False(t, repo.has("k"))
}

func TestElectionReadsAreInvalidatedByWrites(t *testing.T) {
	store := newMemoryElectionStore()
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewElectionService(store, cache, nil, nil, validator.New(), nil, ElectionServiceConfig{})
	ctx := context.Background()

	election, err := svc.Create(ctx, adminIdentity, createReq(candidateReq("A")))
	require.NoError(t, err)
	assert.Equal(t, defaultEligibleVoters, election.EligibleVoters)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.Get(ctx, election.ID)
	require.NoError(t, err)
	assert.True(t, cacheRepo.has(electionListCacheKey))
	assert.True(t, cacheRepo.has(electionItemCacheKey+election.ID))

	_, err = svc.SetStatus(ctx, adminIdentity, election.ID, models.ElectionStatusOngoing)
	require.NoError(t, err)
	assert.False(t, cacheRepo.has(electionListCacheKey))
	assert.False(t, cacheRepo.has(electionItemCacheKey+election.ID))

	_, err = svc.Get(ctx, election.ID)
	require.NoError(t, err)
	_, err = svc.Vote(ctx, studentIdentity, election.ID, dto.VoteRequest{CandidateID: election.Candidates[0].ID})
	require.NoError(t, err)

	fresh, err := svc.Get(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalVotes)
	assert.Equal(t, []string{studentIdentity.ID}, fresh.Voters)
}

func TestElectionReadDoesNotCacheSnapshotOlderThanWrite(t *testing.T) {
	store := newMemoryElectionStore()
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewElectionService(store, cache, nil, nil, validator.New(), nil, ElectionServiceConfig{})
	ctx := context.Background()

	election, err := svc.Create(ctx, adminIdentity, createReq(candidateReq("A")))
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, adminIdentity, election.ID, models.ElectionStatusOngoing)
	require.NoError(t, err)

	store.mu.Lock()
	store.afterFind = func() {
		_, announceErr := svc.Announce(ctx, adminIdentity, election.ID)
		require.NoError(t, announceErr)
	}
	store.mu.Unlock()

	stale, err := svc.Get(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ElectionStatusOngoing, stale.Status)
	assert.False(t, cacheRepo.has(electionItemCacheKey+election.ID))

	current, err := svc.Get(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ElectionStatusCompleted, current.Status)
	assert.True(t, cacheRepo.has(electionItemCacheKey+election.ID))
}

func TestDeleteElectionDropsEveryElectionReadModel(t *testing.T) {
	store := newMemoryElectionStore()
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewElectionService(store, cache, nil, nil, validator.New(), nil, ElectionServiceConfig{})
	ctx := context.Background()

	first, err := svc.Create(ctx, adminIdentity, createReq(candidateReq("A")))
	require.NoError(t, err)
	second, err := svc.Create(ctx, adminIdentity, createReq(candidateReq("B")))
	require.NoError(t, err)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.Get(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.NoError(t, cacheRepo.Set(ctx, "sessions:other", "kept", 0))

	require.NoError(t, svc.Delete(ctx, adminIdentity, first.ID))

	assert.False(t, cacheRepo.has(electionListCacheKey))
	assert.False(t, cacheRepo.has(electionItemCacheKey+first.ID))
	assert.False(t, cacheRepo.has(electionItemCacheKey+second.ID))
	assert.True(t, cacheRepo.has("sessions:other"))
}
