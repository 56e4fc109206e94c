package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/union-api/internal/dto"
	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/internal/service"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/response"
)

type electionService interface {
	List(ctx context.Context) ([]models.Election, error)
	Get(ctx context.Context, id string) (*models.Election, error)
	Create(ctx context.Context, identity *models.Identity, req dto.CreateElectionRequest) (*models.Election, error)
	AddCandidate(ctx context.Context, identity *models.Identity, electionID string, req dto.CandidateRequest) (*models.Election, error)
	SetStatus(ctx context.Context, identity *models.Identity, electionID string, status models.ElectionStatus) (*models.Election, error)
	Announce(ctx context.Context, identity *models.Identity, electionID string) (*models.Election, error)
	Delete(ctx context.Context, identity *models.Identity, electionID string) error
	Vote(ctx context.Context, identity *models.Identity, electionID string, req dto.VoteRequest) (*dto.VoteResponse, error)
}

type resultService interface {
	Results(ctx context.Context, electionID string) (*models.ElectionResults, error)
	Export(ctx context.Context, identity *models.Identity, electionID string, format dto.ExportFormat) (*service.ExportedFile, error)
}

const electionDeletedMessage = "Election deleted successfully"

// ElectionHandler exposes election lifecycle, ballot and result endpoints.
type ElectionHandler struct {
	elections electionService
	results   resultService
}

// NewElectionHandler constructs the handler.
func NewElectionHandler(elections electionService, results resultService) *ElectionHandler {
	return &ElectionHandler{elections: elections, results: results}
}

// List godoc
// @Summary List elections
// @Tags Elections
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /elections [get]
func (h *ElectionHandler) List(c *gin.Context) {
	elections, err := h.elections.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, elections)
}

// Get godoc
// @Summary Get election
// @Tags Elections
// @Produce json
// @Param id path string true "Election ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id} [get]
func (h *ElectionHandler) Get(c *gin.Context) {
	election, err := h.elections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, election)
}

// Create godoc
// @Summary Create election
// @Tags Elections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateElectionRequest true "Election payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /elections [post]
func (h *ElectionHandler) Create(c *gin.Context) {
	var req dto.CreateElectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid election payload"))
		return
	}

	election, err := h.elections.Create(c.Request.Context(), identityFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, election)
}

// AddCandidate godoc
// @Summary Add candidate
// @Description Append a candidate while the election is Pending
// @Tags Elections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Param payload body dto.CandidateRequest true "Candidate payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id}/candidates [post]
func (h *ElectionHandler) AddCandidate(c *gin.Context) {
	var req dto.CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid candidate payload"))
		return
	}

	election, err := h.elections.AddCandidate(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, election)
}

// UpdateStatus godoc
// @Summary Change election status
// @Tags Elections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id}/status [patch]
func (h *ElectionHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	election, err := h.elections.SetStatus(c.Request.Context(), identityFromContext(c), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, election)
}

// Announce godoc
// @Summary Announce results
// @Description Complete the election and return its final state
// @Tags Elections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id}/announce [post]
func (h *ElectionHandler) Announce(c *gin.Context) {
	election, err := h.elections.Announce(c.Request.Context(), identityFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, election)
}

// Delete godoc
// @Summary Delete election
// @Tags Elections
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id} [delete]
func (h *ElectionHandler) Delete(c *gin.Context) {
	if err := h.elections.Delete(c.Request.Context(), identityFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: electionDeletedMessage})
}

// Vote godoc
// @Summary Cast vote
// @Tags Elections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Param payload body dto.VoteRequest true "Ballot"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id}/vote [post]
func (h *ElectionHandler) Vote(c *gin.Context) {
	var req dto.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "candidateId is required"))
		return
	}

	res, err := h.elections.Vote(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Results godoc
// @Summary Election results
// @Tags Results
// @Produce json
// @Param id path string true "Election ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /elections/{id}/results [get]
func (h *ElectionHandler) Results(c *gin.Context) {
	results, err := h.results.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results)
}

// Export godoc
// @Summary Export results
// @Tags Results
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Election ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /elections/{id}/results/export [get]
func (h *ElectionHandler) Export(c *gin.Context) {
	format := dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportFormatCSV)))
	file, err := h.results.Export(c.Request.Context(), identityFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}
