package models

import (
	"time"

	"github.com/lib/pq"
)

// ElectionStatus is the lifecycle state of an election.
type ElectionStatus string

const (
	ElectionStatusPending   ElectionStatus = "Pending"
	ElectionStatusOngoing   ElectionStatus = "Ongoing"
	ElectionStatusCompleted ElectionStatus = "Completed"
)

var electionStatusRank = map[ElectionStatus]int{
	ElectionStatusPending:   0,
	ElectionStatusOngoing:   1,
	ElectionStatusCompleted: 2,
}

// Valid reports whether s is a known status.
func (s ElectionStatus) Valid() bool {
	_, ok := electionStatusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic. Staying in the same state is allowed.
func (s ElectionStatus) CanTransitionTo(next ElectionStatus) bool {
	from, ok := electionStatusRank[s]
	if !ok {
		return false
	}
	to, ok := electionStatusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Election is a votable contest with its candidates and voter roll.
type Election struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	Status         ElectionStatus `db:"status" json:"status"`
	StartDate      time.Time      `db:"start_date" json:"startDate"`
	EndDate        time.Time      `db:"end_date" json:"endDate"`
	TotalVotes     int            `db:"total_votes" json:"totalVotes"`
	EligibleVoters int            `db:"eligible_voters" json:"eligibleVoters"`
	CreatedBy      string         `db:"created_by" json:"createdBy"`
	CreatorName    *string        `db:"creator_name" json:"-"`
	CreatorEmail   *string        `db:"creator_email" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`

	Creator    *ElectionCreator `db:"-" json:"creator,omitempty"`
	Candidates []Candidate      `db:"-" json:"candidates"`
	Voters     []string         `db:"-" json:"voters"`
}

// ElectionCreator is the populated view of the admin who created an election.
type ElectionCreator struct {
	ID       string `json:"id"`
	FullName string `json:"name"`
	Email    string `json:"email"`
}

// Candidate returns the candidate with the given id.
func (e *Election) Candidate(id string) (*Candidate, bool) {
	for i := range e.Candidates {
		if e.Candidates[i].ID == id {
			return &e.Candidates[i], true
		}
	}
	return nil, false
}

// HasVoter reports whether userID is already on the voter roll.
func (e *Election) HasVoter(userID string) bool {
	for _, v := range e.Voters {
		if v == userID {
			return true
		}
	}
	return false
}

// Candidate is a contestant inside one election.
type Candidate struct {
	ID           string         `db:"id" json:"id"`
	ElectionID   string         `db:"election_id" json:"-"`
	Name         string         `db:"name" json:"name"`
	Department   string         `db:"department" json:"department"`
	ProfileImage string         `db:"profile_image" json:"profileImage"`
	Platform     pq.StringArray `db:"platform" json:"platform"`
	Votes        int            `db:"votes" json:"votes"`
	Position     int            `db:"position" json:"-"`
}

// ElectionResults is the public tally view of an election.
type ElectionResults struct {
	ElectionID     string            `json:"electionId"`
	Title          string            `json:"title"`
	Status         ElectionStatus    `json:"status"`
	TotalVotes     int               `json:"totalVotes"`
	EligibleVoters int               `json:"eligibleVoters"`
	Turnout        float64           `json:"turnout"`
	Final          bool              `json:"final"`
	Standings      []CandidateResult `json:"standings"`
	Winners        []CandidateResult `json:"winners,omitempty"`
}

// CandidateResult is one ranked row of an election tally.
type CandidateResult struct {
	Rank        int     `json:"rank"`
	CandidateID string  `json:"candidateId"`
	Name        string  `json:"name"`
	Department  string  `json:"department"`
	Votes       int     `json:"votes"`
	Share       float64 `json:"share"`
}
