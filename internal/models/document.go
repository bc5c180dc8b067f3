package models

import "strings"

// Document is one loaded input text. It is not modified after construction.
type Document struct {
	Source   string
	Content  string
	Metadata map[string]any
}

// NewDocument wraps raw text as a Document named after its source.
func NewDocument(source, content string, metadata map[string]any) Document {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["source"] = source
	return Document{Source: source, Content: content, Metadata: meta}
}

// Chunk represents a contiguous slice of a Document.
// Overlap is the number of leading runes repeated from the previous chunk.
type Chunk struct {
	Content  string
	ChunkID  int
	Start    int
	Overlap  int
	Source   string
	Metadata map[string]any
}

// GenerationRequest holds every input of one pipeline run.
type GenerationRequest struct {
	ProspectInfo string
	ProspectName string
	CompanyInfo  string
	CompanyName  string
	SalesRep     string
	Temperature  float64
}

// Validate rejects requests with blank fields.
func (r GenerationRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"prospect_info", r.ProspectInfo},
		{"prospect_name", r.ProspectName},
		{"company_info", r.CompanyInfo},
		{"company_name", r.CompanyName},
		{"sales_rep", r.SalesRep},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return NewInputError("missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return NewInputError("temperature %.2f out of range [%.1f, %.1f]", r.Temperature, MinTemperature, MaxTemperature)
	}
	return nil
}

// GenerationResult is the output of a successful run.
type GenerationResult struct {
	Email string `json:"output_text"`
	// Summaries holds one map output per chunk, in chunk order.
	Summaries []string `json:"summaries,omitempty"`
	// Reduced holds the summaries handed to the combine prompt after the
	// last reduce round. Empty when no reduction was needed.
	Reduced      []string `json:"reduced_summaries,omitempty"`
	ChunkCount   int      `json:"chunk_count"`
	ReduceRounds int      `json:"reduce_rounds"`
}
