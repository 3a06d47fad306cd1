package lchub

import (
	"encoding/json"
	"fmt"

	"github.com/ripclass/lcvalidate/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultsSchema constrains the raw results payload at the boundary. Anything
// outside this shape is a parsing error, never a field-access surprise
// downstream.
const resultsSchema = `{
	"type": "object",
	"required": ["documents"],
	"properties": {
		"documents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["file_name"],
				"properties": {
					"file_name":     {"type": "string", "minLength": 1},
					"document_type": {"type": "string"},
					"status":        {"type": "string"},
					"summary":       {"type": "string"}
				}
			}
		},
		"issues": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["severity", "message"],
				"properties": {
					"severity": {"type": "string", "minLength": 1},
					"rule":     {"type": "string"},
					"document": {"type": "string"},
					"message":  {"type": "string"}
				}
			}
		},
		"analytics": {"type": ["object", "null"]},
		"timeline": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["stage"],
				"properties": {
					"stage":     {"type": "string"},
					"timestamp": {"type": "string"},
					"detail":    {"type": "string"}
				}
			}
		}
	}
}`

var compiledResultsSchema = jsonschema.MustCompileString("results.json", resultsSchema)

// resultsPayload is the wire shape of GET /api/results/{id}.
type resultsPayload struct {
	Documents []models.DocumentResult `json:"documents"`
	Issues    []models.Issue          `json:"issues"`
	Analytics *models.Analytics       `json:"analytics"`
	Timeline  []models.TimelineEntry  `json:"timeline"`
}

// ParseResults validates the raw payload against the results schema and
// normalizes it into the canonical ValidationResults. Failures classify as
// parsing errors, distinct from transport failures.
func ParseResults(jobID string, raw []byte) (*models.ValidationResults, error) {
	const op = "parse results"

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, ClassifyParsing(op, err)
	}
	if err := compiledResultsSchema.Validate(v); err != nil {
		return nil, ClassifyParsing(op, fmt.Errorf("payload does not match schema: %w", err))
	}

	var payload resultsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ClassifyParsing(op, err)
	}

	results := &models.ValidationResults{
		JobID:     jobID,
		Documents: payload.Documents,
		Issues:    payload.Issues,
		Timeline:  payload.Timeline,
		Raw:       json.RawMessage(raw),
	}

	if payload.Analytics != nil {
		results.Analytics = *payload.Analytics
	} else {
		results.Analytics = deriveAnalytics(payload)
	}

	return results, nil
}

// deriveAnalytics computes counts locally when the server omits them.
func deriveAnalytics(p resultsPayload) models.Analytics {
	a := models.Analytics{
		DocumentCount: len(p.Documents),
		IssueCount:    len(p.Issues),
	}
	for _, issue := range p.Issues {
		switch issue.Severity {
		case "critical":
			a.CriticalCount++
		case "warning":
			a.WarningCount++
		}
	}
	return a
}
