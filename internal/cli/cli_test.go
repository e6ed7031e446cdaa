package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgrag/internal/domain"
	"surgrag/internal/usecase"
	surgerr "surgrag/pkg/errors"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()

	out := run(t, "", "--dir", dir, "context", "--procedure", "Appendectomy", "--signal", "RLQ pain")
	assert.Equal(t, usecase.NoReportsFound+"\n", out)

	report := "PROCEDURE PERFORMED: Laparoscopic appendectomy.\nThe appendix was inflamed and removed."
	out = run(t, report, "--dir", dir, "add", "--file", "-")
	assert.Contains(t, out, "Stored report 1 (Laparoscopic appendectomy., General Surgery)")

	out = run(t, "", "--dir", dir, "query", "-q", "laparoscopic appendectomy", "--json")
	var matches []domain.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
	assert.Equal(t, report, matches[0].Document)

	out = run(t, "", "--dir", dir, "context", "--procedure", "Appendectomy", "--signal", "inflamed appendix")
	assert.True(t, strings.HasPrefix(out, "=== SIMILAR MEDICAL REPORTS FOR REFERENCE ===\n"))
	assert.Contains(t, out, "--- Example Report 1 ---\n"+report+"\n")

	out = run(t, "", "--dir", dir, "rebuild", "--json")
	var stats domain.RebuildStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.BySpecialty["General Surgery"])

	out = run(t, "", "--dir", dir, "delete", "1")
	assert.Contains(t, out, "Deleted report 1.")

	out = run(t, "", "--dir", dir, "stats", "--json")
	var s statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Zero(t, s.Reports)
	assert.Zero(t, s.Collection.TotalDocuments)
	assert.Equal(t, "medical_reports", s.Collection.Collection)

	_, err := os.Stat(filepath.Join(dir, ".surgrag", "reports.db"))
	assert.NoError(t, err)
}

func TestPrintCounts(t *testing.T) {
	var buf bytes.Buffer
	printCounts(&buf, map[string]int{"Urology": 1, "General Surgery": 3, "Gastroenterology": 3}, 2)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "Gastroenterology"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[1]), "General Surgery"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 7*time.Minute, "2h7m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestRebuildStopped(t *testing.T) {
	stats := domain.RebuildStats{Indexed: 4}
	cause := surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "text exceeds encoder limit")

	encodeErr := surgerr.Mark(cause, surgerr.CodeSyncRebuildInterrupted, "rebuild interrupted during encode",
		surgerr.FieldRecordID(5), surgerr.Field("stage", "encode"))
	msg := rebuildStopped(stats, encodeErr)
	assert.Contains(t, msg, "after indexing 4 reports")
	assert.Contains(t, msg, "Report 5 could not be encoded")
	assert.Contains(t, msg, "surgrag delete 5")

	writeErr := surgerr.Mark(cause, surgerr.CodeSyncRebuildInterrupted, "rebuild interrupted during write",
		surgerr.Field("stage", "write"))
	assert.NotContains(t, rebuildStopped(stats, writeErr), "Report ")
}
