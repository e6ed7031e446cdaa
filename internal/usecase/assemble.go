package usecase

import (
	"context"
	"strconv"
	"strings"

	"surgrag/internal/domain"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

const (
	DefaultContextTopK     = 3
	DefaultContextMaxChars = 3000

	NoReportsFound = "No similar reports found in the database."

	contextHeader = "=== SIMILAR MEDICAL REPORTS FOR REFERENCE ===\n"
	contextFooter = "=== END OF REFERENCE REPORTS ==="
)

// ContextAssembler turns retrieved reports into the reference block handed
// to the report generator.
type ContextAssembler struct {
	retriever port.Retriever
	maxChars  int
}

// NewContextAssembler creates an assembler. maxChars <= 0 uses the default.
func NewContextAssembler(retriever port.Retriever, maxChars int) *ContextAssembler {
	if maxChars <= 0 {
		maxChars = DefaultContextMaxChars
	}
	return &ContextAssembler{retriever: retriever, maxChars: maxChars}
}

// Assemble retrieves up to k reports similar to "procedureType: signal" and
// formats them. The output is identical for identical inputs and index state.
func (a *ContextAssembler) Assemble(ctx context.Context, procedureType, signal string, k int) (string, error) {
	if strings.TrimSpace(procedureType) == "" && strings.TrimSpace(signal) == "" {
		return "", surgerr.New(surgerr.CodeQueryInputEmpty, "procedure type and signal are both empty")
	}
	if k <= 0 {
		k = DefaultContextTopK
	}

	docs, err := a.retriever.Retrieve(ctx, procedureType+": "+signal, k, domain.Filters{})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return NoReportsFound, nil
	}

	parts := make([]string, 0, len(docs)+2)
	parts = append(parts, contextHeader)
	for i, doc := range docs {
		parts = append(parts, "--- Example Report "+strconv.Itoa(i+1)+" ---\n"+truncate(doc, a.maxChars)+"\n")
	}
	parts = append(parts, contextFooter)
	return strings.Join(parts, "\n"), nil
}

// truncate cuts s to max runes, appending "..." when anything was cut.
func truncate(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
