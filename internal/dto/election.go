package dto

import (
	"time"

	"github.com/noah-isme/union-api/internal/models"
)

// CandidateRequest is the payload for one candidate, inline or appended later.
type CandidateRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Department   string   `json:"department" validate:"required,max=200"`
	ProfileImage string   `json:"profileImage" validate:"required"`
	Platform     []string `json:"platform" validate:"required,min=1,dive,required"`
}

// CreateElectionRequest creates an election. EligibleVoters falls back to the
// configured default when omitted.
type CreateElectionRequest struct {
	Title          string             `json:"title" validate:"required,max=200"`
	Description    string             `json:"description" validate:"required"`
	StartDate      time.Time          `json:"startDate" validate:"required"`
	EndDate        time.Time          `json:"endDate" validate:"required,gtfield=StartDate"`
	EligibleVoters *int               `json:"eligibleVoters" validate:"omitempty,min=0"`
	Candidates     []CandidateRequest `json:"candidates" validate:"omitempty,dive"`
}

// UpdateStatusRequest moves an election along its lifecycle.
type UpdateStatusRequest struct {
	Status models.ElectionStatus `json:"status" validate:"required"`
}

// VoteRequest is a ballot for one candidate.
type VoteRequest struct {
	CandidateID string `json:"candidateId" validate:"required"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// VoteResponse acknowledges an accepted ballot.
type VoteResponse struct {
	Message string `json:"message"`
}

// ExportFormat selects the results export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
