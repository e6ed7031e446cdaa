package domain

import (
	"strconv"
	"strings"
	"time"
)

// Record is the slice of a stored report the index cares about.
// Records are immutable once stored; an update is a delete followed by an add.
type Record struct {
	ID            int64
	Text          string
	ProcedureType string
	Specialty     string
}

// Indexable reports whether the record carries text worth embedding.
func (r Record) Indexable() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Metadata returns the filterable attributes stored alongside the embedding.
func (r Record) Metadata() Metadata {
	return Metadata{
		ProcedureType: r.ProcedureType,
		Specialty:     r.Specialty,
		RecordID:      r.ID,
	}
}

// Report is a full row of the record store.
type Report struct {
	ID             int64     `json:"id"`
	ProcedureType  string    `json:"procedure_type"`
	Specialty      string    `json:"specialty"`
	ReportName     string    `json:"report_name,omitempty"`
	ReportText     string    `json:"report_text"`
	Keywords       string    `json:"keywords,omitempty"`
	Source         string    `json:"source"`
	IsDeidentified bool      `json:"is_deidentified"`
	AddedAt        time.Time `json:"added_at"`
}

// Record projects the report onto the fields the index uses.
func (r Report) Record() Record {
	return Record{
		ID:            r.ID,
		Text:          r.ReportText,
		ProcedureType: r.ProcedureType,
		Specialty:     r.Specialty,
	}
}

// NewReport is the input for storing a report. The store assigns the id.
type NewReport struct {
	ProcedureType  string
	Specialty      string
	ReportName     string
	ReportText     string
	Keywords       string
	Source         string
	IsDeidentified bool
}

// ReportQuery narrows SearchReports. Empty fields are ignored.
type ReportQuery struct {
	Specialty     string
	ProcedureType string
	Keyword       string
	Source        string
	Limit         int
}

// Metadata is the filterable part of an index entry.
type Metadata struct {
	ProcedureType string `json:"procedure_type"`
	Specialty     string `json:"specialty"`
	RecordID      int64  `json:"record_id"`
}

// Field returns the value of a filterable metadata field.
func (m Metadata) Field(name string) (string, bool) {
	switch name {
	case FieldProcedureType:
		return m.ProcedureType, true
	case FieldSpecialty:
		return m.Specialty, true
	case FieldRecordID:
		return strconv.FormatInt(m.RecordID, 10), true
	}
	return "", false
}

// IndexEntry is one vector in the index, keyed by the record id.
type IndexEntry struct {
	ID        int64
	Embedding []float32
	Metadata  Metadata
	Document  string
}

// Match is a query hit. Distance is cosine distance, smaller is closer.
type Match struct {
	ID       int64   `json:"id"`
	Document string  `json:"document"`
	Distance float64 `json:"distance"`
}

// RebuildStats summarizes a full rebuild.
type RebuildStats struct {
	Total           int            `json:"total"`
	Indexed         int            `json:"indexed"`
	Skipped         int            `json:"skipped"`
	BySpecialty     map[string]int `json:"specialties"`
	ByProcedureType map[string]int `json:"procedure_types"`
}

// NewRebuildStats returns stats with initialized breakdown maps.
func NewRebuildStats() RebuildStats {
	return RebuildStats{
		BySpecialty:     make(map[string]int),
		ByProcedureType: make(map[string]int),
	}
}

// CollectionStats describes the vector collection.
type CollectionStats struct {
	TotalDocuments int    `json:"total_documents"`
	Collection     string `json:"collection"`
	EmbeddingModel string `json:"embedding_model"`
	Backend        string `json:"backend"`
	Location       string `json:"location,omitempty"`
	NeedsRebuild   bool   `json:"needs_rebuild"`
	RebuildReason  string `json:"rebuild_reason,omitempty"`
}
