package detector

import (
	"time"

	"github.com/google/uuid"

	"arbiflow/internal/exchange"
	"arbiflow/models"
)

// Assemble bundles a run's ranked opportunities and performance table into
// the immutable result object. Pure composition, no I/O.
func Assemble(params models.RunParams, opps []models.Opportunity, tri []models.TriangularOpportunity, perf map[exchange.Exchange]*models.ExchangePerformance) *models.Report {
	return &models.Report{
		RunID:         uuid.New().String(),
		GeneratedAt:   time.Now().UTC(),
		Params:        params,
		Opportunities: opps,
		Triangular:    tri,
		Performance:   perf,
	}
}
