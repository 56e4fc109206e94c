package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/union-api/internal/dto"
	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/internal/repository"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/lock"
)

const (
	electionListCacheKey   = "elections:list"
	electionItemCacheKey   = "elections:item:"
	electionCachePattern   = "elections:*"
	voteAcceptedMessage    = "vote cast successfully"
	defaultEligibleVoters  = 12547
	electionNotFoundReason = "election not found"
)

type electionStore interface {
	List(ctx context.Context) ([]models.Election, error)
	FindByID(ctx context.Context, id string) (*models.Election, error)
	Create(ctx context.Context, election *models.Election) error
	AddCandidate(ctx context.Context, electionID string, candidate *models.Candidate, guard repository.StatusGuard) error
	UpdateStatus(ctx context.Context, electionID string, status models.ElectionStatus, guard repository.StatusGuard) error
	CastVote(ctx context.Context, electionID, candidateID, userID string, guard repository.StatusGuard) error
	Delete(ctx context.Context, id string) error
}

// ElectionServiceConfig tunes election defaults.
type ElectionServiceConfig struct {
	DefaultEligibleVoters int
	CacheTTL              time.Duration
}

// ElectionService runs the election lifecycle and ballot casting. Every
// mutation of one election is serialised through a per-election lock; the
// store adds a row lock so separate instances stay consistent too.
type ElectionService struct {
	repo      electionStore
	cache     *CacheService
	audit     auditLogger
	metrics   *MetricsService
	locks     *lock.Keyed
	validator *validator.Validate
	logger    *zap.Logger
	config    ElectionServiceConfig

	// fillMu orders cache fills against evictions; generation counts evictions.
	fillMu     sync.Mutex
	generation uint64
}

// NewElectionService wires the election use cases. cache, audit and metrics may be nil.
func NewElectionService(repo electionStore, cache *CacheService, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ElectionServiceConfig) *ElectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultEligibleVoters <= 0 {
		cfg.DefaultEligibleVoters = defaultEligibleVoters
	}
	return &ElectionService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		locks:     lock.NewKeyed(),
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// List returns every election, newest first.
func (s *ElectionService) List(ctx context.Context) ([]models.Election, error) {
	var cached []models.Election
	if s.cache.Get(ctx, electionListCacheKey, &cached) {
		return cached, nil
	}

	gen := s.cacheGeneration()
	elections, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list elections")
	}
	s.fill(ctx, gen, electionListCacheKey, elections)
	return elections, nil
}

// Get returns one election with candidates, voter roll and creator.
func (s *ElectionService) Get(ctx context.Context, id string) (*models.Election, error) {
	var cached models.Election
	if s.cache.Get(ctx, electionItemCacheKey+id, &cached) {
		return &cached, nil
	}

	gen := s.cacheGeneration()
	election, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, gen, electionItemCacheKey+id, election)
	return election, nil
}

// Create persists a new Pending election with zeroed tallies.
func (s *ElectionService) Create(ctx context.Context, identity *models.Identity, req dto.CreateElectionRequest) (*models.Election, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid election payload")
	}

	eligible := s.config.DefaultEligibleVoters
	if req.EligibleVoters != nil {
		eligible = *req.EligibleVoters
	}

	election := &models.Election{
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.ElectionStatusPending,
		StartDate:      req.StartDate.UTC(),
		EndDate:        req.EndDate.UTC(),
		EligibleVoters: eligible,
		CreatedBy:      identity.ID,
		Candidates:     make([]models.Candidate, 0, len(req.Candidates)),
		Voters:         []string{},
	}
	for _, c := range req.Candidates {
		election.Candidates = append(election.Candidates, candidateFromRequest(c))
	}

	if err := s.repo.Create(ctx, election); err != nil {
		return nil, appErrors.Internal(err, "failed to create election")
	}
	election.Creator = &models.ElectionCreator{ID: identity.ID, Email: identity.Email}

	s.evict(func() { s.cache.Invalidate(ctx, electionListCacheKey) })
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionElectionCreate, models.AuditResourceElection, election.ID, map[string]interface{}{
		"title":      election.Title,
		"candidates": len(election.Candidates),
	})
	s.logger.Info("election created", zap.String("election_id", election.ID), zap.String("created_by", identity.ID))
	return election, nil
}

// AddCandidate appends a candidate to a Pending election.
func (s *ElectionService) AddCandidate(ctx context.Context, identity *models.Identity, electionID string, req dto.CandidateRequest) (*models.Election, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid candidate payload")
	}

	unlock := s.locks.Lock(electionID)
	defer unlock()

	candidate := candidateFromRequest(req)
	err := s.repo.AddCandidate(ctx, electionID, &candidate, func(current models.ElectionStatus) error {
		if current != models.ElectionStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "candidates can only be added while the election is pending")
		}
		return nil
	})
	if err != nil {
		return nil, mapElectionError(err, "failed to add candidate")
	}

	s.invalidate(ctx, electionID)
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionCandidateAdd, models.AuditResourceElection, electionID, map[string]string{
		"candidateId": candidate.ID,
		"name":        candidate.Name,
	})
	return s.load(ctx, electionID)
}

// SetStatus moves the election forward along Pending, Ongoing, Completed.
// Re-applying the current status succeeds without change.
func (s *ElectionService) SetStatus(ctx context.Context, identity *models.Identity, electionID string, status models.ElectionStatus) (*models.Election, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of Pending, Ongoing, Completed")
	}
	if err := s.transition(ctx, electionID, status); err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionElectionStatus, models.AuditResourceElection, electionID, map[string]string{"status": string(status)})
	return s.load(ctx, electionID)
}

// Announce closes the election and returns its final snapshot. Completed is
// terminal, so the transition is accepted from every state.
func (s *ElectionService) Announce(ctx context.Context, identity *models.Identity, electionID string) (*models.Election, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, electionID, models.ElectionStatusCompleted); err != nil {
		return nil, err
	}

	election, err := s.load(ctx, electionID)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionElectionAnnounce, models.AuditResourceElection, electionID, map[string]int{"totalVotes": election.TotalVotes})
	s.logger.Info("election announced", zap.String("election_id", electionID), zap.Int("total_votes", election.TotalVotes))
	return election, nil
}

// Delete removes the election with its candidates and voter roll.
func (s *ElectionService) Delete(ctx context.Context, identity *models.Identity, electionID string) error {
	if err := requireAdmin(identity); err != nil {
		return err
	}

	unlock := s.locks.Lock(electionID)
	defer unlock()

	if err := s.repo.Delete(ctx, electionID); err != nil {
		return mapElectionError(err, "failed to delete election")
	}

	s.evict(func() { s.cache.InvalidatePattern(ctx, electionCachePattern) })
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionElectionDelete, models.AuditResourceElection, electionID, nil)
	return nil
}

// Vote records one ballot for the caller. A caller votes at most once per
// election and only while it is Ongoing.
func (s *ElectionService) Vote(ctx context.Context, identity *models.Identity, electionID string, req dto.VoteRequest) (*dto.VoteResponse, error) {
	if identity == nil || identity.ID == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "candidateId is required")
	}

	unlock := s.locks.Lock(electionID)
	defer unlock()

	err := s.repo.CastVote(ctx, electionID, req.CandidateID, identity.ID, func(current models.ElectionStatus) error {
		if current != models.ElectionStatusOngoing {
			return appErrors.Clone(appErrors.ErrInvalidState, "election is not open for voting")
		}
		return nil
	})
	if err != nil {
		mapped := mapElectionError(err, "failed to cast vote")
		s.metrics.RecordVote(voteResult(mapped))
		return nil, mapped
	}

	s.metrics.RecordVote(VoteResultAccepted)
	s.invalidate(ctx, electionID)
	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionVoteCast, models.AuditResourceElection, electionID, nil)
	return &dto.VoteResponse{Message: voteAcceptedMessage}, nil
}

func (s *ElectionService) transition(ctx context.Context, electionID string, next models.ElectionStatus) error {
	unlock := s.locks.Lock(electionID)
	defer unlock()

	var from models.ElectionStatus
	err := s.repo.UpdateStatus(ctx, electionID, next, func(current models.ElectionStatus) error {
		from = current
		if !current.CanTransitionTo(next) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move election from "+string(current)+" to "+string(next))
		}
		return nil
	})
	if err != nil {
		return mapElectionError(err, "failed to update election status")
	}

	if from != next {
		s.metrics.RecordTransition(from, next)
		s.logger.Info("election status changed", zap.String("election_id", electionID), zap.String("from", string(from)), zap.String("to", string(next)))
	}
	s.invalidate(ctx, electionID)
	return nil
}

func (s *ElectionService) load(ctx context.Context, id string) (*models.Election, error) {
	election, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapElectionError(err, "failed to load election")
	}
	return election, nil
}

func (s *ElectionService) invalidate(ctx context.Context, electionID string) {
	s.evict(func() { s.cache.Invalidate(ctx, electionListCacheKey, electionItemCacheKey+electionID) })
}

// evict bumps the cache generation and runs drop while no fill can interleave.
func (s *ElectionService) evict(drop func()) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.generation++
	drop()
}

func (s *ElectionService) cacheGeneration() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.generation
}

// fill stores value unless an eviction happened since gen was read, in which
// case value may predate a committed write.
func (s *ElectionService) fill(ctx context.Context, gen uint64, key string, value interface{}) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.generation != gen {
		return
	}
	s.cache.Set(ctx, key, value, s.config.CacheTTL)
}

func candidateFromRequest(req dto.CandidateRequest) models.Candidate {
	platform := make([]string, len(req.Platform))
	copy(platform, req.Platform)
	return models.Candidate{
		Name:         req.Name,
		Department:   req.Department,
		ProfileImage: req.ProfileImage,
		Platform:     platform,
	}
}

func mapElectionError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, electionNotFoundReason)
	case errors.Is(err, repository.ErrCandidateNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "candidate not found")
	case errors.Is(err, repository.ErrVoteExists):
		return appErrors.ErrAlreadyVoted
	default:
		return appErrors.Internal(err, message)
	}
}

func voteResult(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrAlreadyVoted):
		return VoteResultAlreadyVoted
	case errors.Is(err, appErrors.ErrInternal):
		return VoteResultError
	default:
		return VoteResultRejected
	}
}
