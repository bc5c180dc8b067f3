package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequestValidate(t *testing.T) {
	valid := GenerationRequest{
		ProspectInfo: "RapidRoad moves freight.",
		ProspectName: "RapidRoad",
		CompanyInfo:  "Acme builds dashboards.",
		CompanyName:  "Acme",
		SalesRep:     "Greg",
		Temperature:  DefaultTemperature,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*GenerationRequest)
		want   string
	}{
		{"blank prospect info", func(r *GenerationRequest) { r.ProspectInfo = " \n" }, "prospect_info"},
		{"missing company", func(r *GenerationRequest) { r.CompanyName = "" }, "company_name"},
		{"temperature below range", func(r *GenerationRequest) { r.Temperature = -0.1 }, "temperature"},
		{"temperature above range", func(r *GenerationRequest) { r.Temperature = 2.1 }, "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			require.ErrorIs(t, err, ErrInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewDocumentCopiesMetadata(t *testing.T) {
	meta := map[string]any{"format": ".txt"}
	doc := NewDocument("p.txt", "text", meta)
	meta["format"] = ".md"
	assert.Equal(t, ".txt", doc.Metadata["format"])
	assert.Equal(t, "p.txt", doc.Metadata["source"])
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrMissingVariable, ErrTemplate)
	assert.ErrorIs(t, ErrUnusedVariable, ErrTemplate)
	assert.ErrorIs(t, ErrNotFound, ErrIO)
	assert.NotErrorIs(t, ErrNotFound, ErrInput)
}
