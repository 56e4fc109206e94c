package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/union-api/internal/models"
)

var (
	// ErrCandidateNotFound is returned when a candidate id does not belong to the election.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrVoteExists is returned when the voter is already on the election roll.
	ErrVoteExists = errors.New("voter already recorded")
)

// StatusGuard inspects the locked election status and aborts the write by returning an error.
type StatusGuard func(current models.ElectionStatus) error

const electionColumns = `e.id, e.title, e.description, e.status, e.start_date, e.end_date, e.total_votes, e.eligible_voters, e.created_by, e.created_at, e.updated_at, u.full_name AS creator_name, u.email AS creator_email`

const candidateColumns = `id, election_id, name, department, profile_image, platform, votes, position`

// ElectionRepository persists elections, their candidates and voter rolls.
type ElectionRepository struct {
	db *sqlx.DB
}

// NewElectionRepository constructs an election repository.
func NewElectionRepository(db *sqlx.DB) *ElectionRepository {
	return &ElectionRepository{db: db}
}

// List returns every election newest first with candidates and voters attached.
func (r *ElectionRepository) List(ctx context.Context) ([]models.Election, error) {
	query := fmt.Sprintf("SELECT %s FROM elections e LEFT JOIN users u ON u.id = e.created_by ORDER BY e.created_at DESC", electionColumns)

	var elections []models.Election
	if err := r.db.SelectContext(ctx, &elections, query); err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	if len(elections) == 0 {
		return []models.Election{}, nil
	}

	ids := make([]string, len(elections))
	index := make(map[string]*models.Election, len(elections))
	for i := range elections {
		ids[i] = elections[i].ID
		elections[i].Candidates = []models.Candidate{}
		elections[i].Voters = []string{}
		attachCreator(&elections[i])
		index[elections[i].ID] = &elections[i]
	}

	var candidates []models.Candidate
	candidateQuery := fmt.Sprintf("SELECT %s FROM election_candidates WHERE election_id = ANY($1) ORDER BY election_id, position", candidateColumns)
	if err := r.db.SelectContext(ctx, &candidates, candidateQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list election candidates: %w", err)
	}
	for _, c := range candidates {
		if e, ok := index[c.ElectionID]; ok {
			e.Candidates = append(e.Candidates, c)
		}
	}

	var voters []struct {
		ElectionID string `db:"election_id"`
		UserID     string `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &voters, `SELECT election_id, user_id FROM election_voters WHERE election_id = ANY($1) ORDER BY voted_at`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list election voters: %w", err)
	}
	for _, v := range voters {
		if e, ok := index[v.ElectionID]; ok {
			e.Voters = append(e.Voters, v.UserID)
		}
	}

	return elections, nil
}

// FindByID loads a single election. It returns sql.ErrNoRows when absent.
func (r *ElectionRepository) FindByID(ctx context.Context, id string) (*models.Election, error) {
	query := fmt.Sprintf("SELECT %s FROM elections e LEFT JOIN users u ON u.id = e.created_by WHERE e.id = $1", electionColumns)

	var election models.Election
	if err := r.db.GetContext(ctx, &election, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find election: %w", err)
	}
	attachCreator(&election)

	election.Candidates = []models.Candidate{}
	candidateQuery := fmt.Sprintf("SELECT %s FROM election_candidates WHERE election_id = $1 ORDER BY position", candidateColumns)
	if err := r.db.SelectContext(ctx, &election.Candidates, candidateQuery, id); err != nil {
		return nil, fmt.Errorf("load election candidates: %w", err)
	}

	election.Voters = []string{}
	if err := r.db.SelectContext(ctx, &election.Voters, `SELECT user_id FROM election_voters WHERE election_id = $1 ORDER BY voted_at`, id); err != nil {
		return nil, fmt.Errorf("load election voters: %w", err)
	}

	return &election, nil
}

// Create inserts the election and its initial candidates in one transaction.
func (r *ElectionRepository) Create(ctx context.Context, election *models.Election) error {
	if election.ID == "" {
		election.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if election.CreatedAt.IsZero() {
		election.CreatedAt = now
	}
	election.UpdatedAt = now

	return r.withTx(ctx, "create election", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO elections (id, title, description, status, start_date, end_date, total_votes, eligible_voters, created_by, created_at, updated_at) VALUES (:id, :title, :description, :status, :start_date, :end_date, :total_votes, :eligible_voters, :created_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, election); err != nil {
			return fmt.Errorf("insert election: %w", err)
		}
		for i := range election.Candidates {
			candidate := &election.Candidates[i]
			candidate.ElectionID = election.ID
			candidate.Position = i
			if err := insertCandidate(ctx, tx, candidate); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddCandidate appends a candidate while the election row is locked. guard
// decides whether the current status accepts new candidates.
func (r *ElectionRepository) AddCandidate(ctx context.Context, electionID string, candidate *models.Candidate, guard StatusGuard) error {
	return r.withTx(ctx, "add candidate", func(tx *sqlx.Tx) error {
		if err := lockAndGuard(ctx, tx, electionID, guard); err != nil {
			return err
		}

		var next int
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position) + 1, 0) FROM election_candidates WHERE election_id = $1`, electionID); err != nil {
			return fmt.Errorf("next candidate position: %w", err)
		}
		candidate.ElectionID = electionID
		candidate.Position = next
		if err := insertCandidate(ctx, tx, candidate); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE elections SET updated_at = $2 WHERE id = $1`, electionID, time.Now().UTC()); err != nil {
			return fmt.Errorf("touch election: %w", err)
		}
		return nil
	})
}

// UpdateStatus writes the new status after guard approves the locked current one.
func (r *ElectionRepository) UpdateStatus(ctx context.Context, electionID string, status models.ElectionStatus, guard StatusGuard) error {
	return r.withTx(ctx, "update election status", func(tx *sqlx.Tx) error {
		if err := lockAndGuard(ctx, tx, electionID, guard); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE elections SET status = $2, updated_at = $3 WHERE id = $1`, electionID, status, time.Now().UTC()); err != nil {
			return fmt.Errorf("write election status: %w", err)
		}
		return nil
	})
}

// CastVote records userID's vote for candidateID and bumps both tallies as one
// unit. The election row lock serialises concurrent voters across instances.
// A recorded voter is reported before an unknown candidate.
func (r *ElectionRepository) CastVote(ctx context.Context, electionID, candidateID, userID string, guard StatusGuard) error {
	return r.withTx(ctx, "cast vote", func(tx *sqlx.Tx) error {
		if err := lockAndGuard(ctx, tx, electionID, guard); err != nil {
			return err
		}

		var voted bool
		if err := tx.GetContext(ctx, &voted, `SELECT EXISTS (SELECT 1 FROM election_voters WHERE election_id = $1 AND user_id = $2)`, electionID, userID); err != nil {
			return fmt.Errorf("check voter: %w", err)
		}
		if voted {
			return ErrVoteExists
		}

		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM election_candidates WHERE id = $1 AND election_id = $2`, candidateID, electionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCandidateNotFound
			}
			return fmt.Errorf("check candidate: %w", err)
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `INSERT INTO election_voters (election_id, user_id, candidate_id, voted_at) VALUES ($1, $2, $3, $4) ON CONFLICT (election_id, user_id) DO NOTHING`, electionID, userID, candidateID, now)
		if err != nil {
			return fmt.Errorf("record voter: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record voter rows: %w", err)
		}
		if affected == 0 {
			return ErrVoteExists
		}

		if _, err := tx.ExecContext(ctx, `UPDATE election_candidates SET votes = votes + 1 WHERE id = $1`, candidateID); err != nil {
			return fmt.Errorf("increment candidate votes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE elections SET total_votes = total_votes + 1, updated_at = $2 WHERE id = $1`, electionID, now); err != nil {
			return fmt.Errorf("increment election votes: %w", err)
		}
		return nil
	})
}

// Delete permanently removes an election; candidates and voters cascade.
// It returns sql.ErrNoRows when nothing was deleted.
func (r *ElectionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM elections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete election: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete election rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ElectionRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", op, err)
	}
	return nil
}

func lockAndGuard(ctx context.Context, tx *sqlx.Tx, electionID string, guard StatusGuard) error {
	var status models.ElectionStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM elections WHERE id = $1 FOR UPDATE`, electionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock election: %w", err)
	}
	if guard != nil {
		return guard(status)
	}
	return nil
}

func insertCandidate(ctx context.Context, tx *sqlx.Tx, candidate *models.Candidate) error {
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	if candidate.Platform == nil {
		candidate.Platform = pq.StringArray{}
	}
	const query = `INSERT INTO election_candidates (id, election_id, name, department, profile_image, platform, votes, position) VALUES (:id, :election_id, :name, :department, :profile_image, :platform, :votes, :position)`
	if _, err := tx.NamedExecContext(ctx, query, candidate); err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func attachCreator(e *models.Election) {
	if e.CreatorName == nil && e.CreatorEmail == nil {
		return
	}
	creator := &models.ElectionCreator{ID: e.CreatedBy}
	if e.CreatorName != nil {
		creator.FullName = *e.CreatorName
	}
	if e.CreatorEmail != nil {
		creator.Email = *e.CreatorEmail
	}
	e.Creator = creator
}
