package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/union-api/internal/dto"
	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/export"
)

type electionReader interface {
	Get(ctx context.Context, id string) (*models.Election, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportedFile is a rendered results document.
type ExportedFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ResultService derives tallies from stored elections.
type ResultService struct {
	elections electionReader
	renderers map[dto.ExportFormat]tableRenderer
	audit     auditLogger
	logger    *zap.Logger
}

// NewResultService constructs a ResultService with CSV and PDF renderers.
func NewResultService(elections electionReader, audit auditLogger, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		elections: elections,
		renderers: map[dto.ExportFormat]tableRenderer{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		},
		audit:  audit,
		logger: logger,
	}
}

// Results returns the ranked tally. Winners are only named once Completed.
func (s *ResultService) Results(ctx context.Context, electionID string) (*models.ElectionResults, error) {
	election, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	return Tally(election), nil
}

// Export renders the tally in the requested format for administrators.
func (s *ResultService) Export(ctx context.Context, identity *models.Identity, electionID string, format dto.ExportFormat) (*ExportedFile, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	if format == "" {
		format = dto.ExportFormatCSV
	}
	renderer, ok := s.renderers[dto.ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	results, err := s.Results(ctx, electionID)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(resultsTable(results))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render results")
	}

	recordAudit(ctx, s.audit, s.logger, identity, models.AuditActionElectionExport, models.AuditResourceElection, electionID, map[string]string{"format": renderer.Extension()})
	return &ExportedFile{
		Filename:    fmt.Sprintf("election-%s-results.%s", electionID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Tally ranks candidates by votes. Ties share a rank and keep ballot order.
func Tally(e *models.Election) *models.ElectionResults {
	results := &models.ElectionResults{
		ElectionID:     e.ID,
		Title:          e.Title,
		Status:         e.Status,
		TotalVotes:     e.TotalVotes,
		EligibleVoters: e.EligibleVoters,
		Turnout:        percent(e.TotalVotes, e.EligibleVoters),
		Final:          e.Status == models.ElectionStatusCompleted,
		Standings:      make([]models.CandidateResult, 0, len(e.Candidates)),
	}

	ordered := make([]models.Candidate, len(e.Candidates))
	copy(ordered, e.Candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Votes > ordered[j].Votes })

	for i, c := range ordered {
		rank := i + 1
		if i > 0 && c.Votes == ordered[i-1].Votes {
			rank = results.Standings[i-1].Rank
		}
		results.Standings = append(results.Standings, models.CandidateResult{
			Rank:        rank,
			CandidateID: c.ID,
			Name:        c.Name,
			Department:  c.Department,
			Votes:       c.Votes,
			Share:       percent(c.Votes, e.TotalVotes),
		})
	}

	if results.Final {
		for _, row := range results.Standings {
			if row.Rank == 1 && row.Votes > 0 {
				results.Winners = append(results.Winners, row)
			}
		}
	}
	return results
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

func resultsTable(r *models.ElectionResults) export.Table {
	table := export.Table{
		Title: r.Title,
		Summary: [][2]string{
			{"Status", string(r.Status)},
			{"Total votes", strconv.Itoa(r.TotalVotes)},
			{"Eligible voters", strconv.Itoa(r.EligibleVoters)},
			{"Turnout", formatPercent(r.Turnout)},
		},
		Columns: []export.Column{
			{Key: "rank", Header: "Rank", Weight: 0.6},
			{Key: "name", Header: "Candidate", Weight: 2},
			{Key: "department", Header: "Department", Weight: 2},
			{Key: "votes", Header: "Votes", Weight: 0.8},
			{Key: "share", Header: "Share", Weight: 0.8},
		},
		Rows: make([]map[string]string, 0, len(r.Standings)),
	}
	for _, row := range r.Standings {
		table.Rows = append(table.Rows, map[string]string{
			"rank":       strconv.Itoa(row.Rank),
			"name":       row.Name,
			"department": row.Department,
			"votes":      strconv.Itoa(row.Votes),
			"share":      formatPercent(row.Share),
		})
	}
	if len(r.Winners) > 0 {
		names := make([]string, len(r.Winners))
		for i, w := range r.Winners {
			names[i] = w.Name
		}
		table.Summary = append(table.Summary, [2]string{"Winner", strings.Join(names, ", ")})
	}
	return table
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}
