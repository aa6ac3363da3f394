package services

import (
	"github.com/TFMV/cypherplan/pkg/models"
)

// DefaultSampleSize is the number of rows kept per query for synthesis.
const DefaultSampleSize = 5

// Integrate merges plan results. Successful rows are concatenated in query
// order then row order; failed and skipped queries contribute no rows but
// keep their summary entry. Rows are never de-duplicated or reconciled.
func Integrate(plan *models.QueryPlan, records []models.QueryExecutionRecord, sampleSize int) *models.IntegratedContext {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	ic := &models.IntegratedContext{
		PerQuery:        make([]models.QuerySummary, 0, len(records)),
		CombinedRecords: []models.Row{},
	}
	if plan != nil {
		ic.Strategy = plan.IntegrationStrategy
		ic.Reasoning = plan.Reasoning
		ic.Queries = plan.Queries
	}

	for _, rec := range records {
		summary := models.QuerySummary{
			Index:         rec.Index,
			Query:         rec.Query,
			Success:       rec.Success,
			ExecutionTime: rec.ExecutionTime,
			Error:         rec.ErrorMessage,
			Status:        rec.Status,
		}
		if rec.Success {
			summary.RecordCount = len(rec.Records)
			n := len(rec.Records)
			if n > sampleSize {
				n = sampleSize
			}
			summary.SampleRows = rec.Records[:n:n]
			ic.CombinedRecords = append(ic.CombinedRecords, rec.Records...)
			ic.SuccessfulQueries++
		} else {
			ic.FailedQueries++
		}
		ic.PerQuery = append(ic.PerQuery, summary)
	}
	ic.TotalRecords = len(ic.CombinedRecords)

	return ic
}

// QueryMetadataFrom converts plan records into the per-query entries of a pipeline result.
func QueryMetadataFrom(records []models.QueryExecutionRecord) []models.QueryMetadata {
	out := make([]models.QueryMetadata, 0, len(records))
	for _, rec := range records {
		md := models.QueryMetadata{
			Query:         rec.Query,
			Success:       rec.Success,
			ExecutionTime: rec.ExecutionTime,
			Error:         rec.ErrorMessage,
			Status:        rec.Status,
		}
		if rec.Success {
			md.RecordsCount = len(rec.Records)
		}
		out = append(out, md)
	}
	return out
}
