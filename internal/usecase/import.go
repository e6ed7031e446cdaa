package usecase

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"surgrag/config"
	"surgrag/internal/adapter/fs"
	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

// Import file statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// FileResult is the outcome of importing one file.
type FileResult struct {
	File          string `json:"file"`
	Status        string `json:"status"`
	ReportID      int64  `json:"report_id,omitempty"`
	ProcedureType string `json:"procedure_type,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	Drift         bool   `json:"drift,omitempty"` // stored but not indexed
	Error         string `json:"error,omitempty"`
}

// ImportResult contains the results of an import run.
type ImportResult struct {
	Files   []FileResult `json:"files"`
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Drifted int          `json:"drifted"`
}

func (r *ImportResult) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	switch fr.Status {
	case StatusSuccess:
		r.Success++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
	if fr.Drift {
		r.Drifted++
	}
}

// Importer bulk-loads reports through the Ingestor, so every stored report is
// propagated to the index.
type Importer struct {
	ingestor *Ingestor
	cfg      config.ImportConfig
	logger   *zap.Logger
	progress func(done, total int)
}

type ImportOption func(*Importer)

func WithImportLogger(logger *zap.Logger) ImportOption {
	return func(i *Importer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithImportProgress registers fn to run after each file or row is handled.
// It may be called from several goroutines.
func WithImportProgress(fn func(done, total int)) ImportOption {
	return func(i *Importer) {
		i.progress = fn
	}
}

func NewImporter(ingestor *Ingestor, cfg config.ImportConfig, opts ...ImportOption) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	i := &Importer{
		ingestor: ingestor,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportDir imports every selected report file under dir. A failing file is
// recorded in the result and does not stop the run; only context
// cancellation or a walk failure returns an error.
func (i *Importer) ImportDir(ctx context.Context, dir string) (*ImportResult, error) {
	walker := fs.NewWalker(i.cfg.Includes, i.cfg.Excludes)
	files, err := walker.Walk(dir)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeImportFileFailure, "failed to walk directory", surgerr.Field("dir", dir))
	}

	results := make([]FileResult, len(files))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Workers)
	for n, file := range files {
		n, file := n, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[n] = i.importFile(gctx, file)
			if i.progress != nil {
				mu.Lock()
				done++
				d := done
				mu.Unlock()
				i.progress(d, len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Moves run serially so collision renaming cannot race.
	if i.cfg.MoveTo != "" {
		dest := config.ResolvePath(dir, i.cfg.MoveTo)
		for n, file := range files {
			if results[n].Status != StatusSuccess {
				continue
			}
			if _, err := fs.MoveFile(file.Path, dest); err != nil {
				i.logger.Warn("failed to move imported file", zap.String("file", file.RelPath), zap.Error(err))
			}
		}
	}

	result := &ImportResult{}
	for _, fr := range results {
		result.add(fr)
	}
	i.logger.Info("import complete", zap.String("dir", dir),
		zap.Int("success", result.Success), zap.Int("failed", result.Failed), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (i *Importer) importFile(ctx context.Context, file fs.FileInfo) FileResult {
	fr := FileResult{File: file.RelPath}

	if ext := strings.ToLower(filepath.Ext(file.Path)); ext != ".txt" {
		fr.Status = StatusSkipped
		fr.Error = "unsupported file type: " + ext
		return fr
	}

	text, err := fs.ReadText(file.Path)
	if err != nil {
		fr.Status = StatusFailed
		fr.Error = "failed to read file: " + err.Error()
		return fr
	}
	if len([]rune(strings.TrimSpace(text))) < i.cfg.MinChars {
		fr.Status = StatusFailed
		fr.Error = "text too short or empty"
		return fr
	}

	fr.ProcedureType = ExtractProcedureType(text)
	fr.Specialty = ExtractSpecialty(text, i.cfg.DefaultSpecialty)
	res, err := i.ingestor.Add(ctx, domain.NewReport{
		ProcedureType:  fr.ProcedureType,
		Specialty:      fr.Specialty,
		ReportName:     strings.TrimSuffix(filepath.Base(file.Path), filepath.Ext(file.Path)),
		ReportText:     text,
		Source:         i.cfg.Source,
		IsDeidentified: true,
	})
	return i.finish(fr, res, err)
}

func (i *Importer) finish(fr FileResult, res AddResult, err error) FileResult {
	fr.ReportID = res.ID
	switch {
	case err == nil:
		fr.Status = StatusSuccess
	case surgerr.IsDrift(err):
		// The store write stands, so the file counts as imported.
		fr.Status = StatusSuccess
		fr.Drift = true
		fr.Error = err.Error()
		i.logger.Warn("imported report not indexed", zap.String("file", fr.File), zap.Int64("id", res.ID), zap.Error(err))
	default:
		fr.Status = StatusFailed
		fr.Error = err.Error()
	}
	return fr
}

// csvColumns are the MTSamples export columns the importer reads.
var csvColumns = []string{"description", "medical_specialty", "sample_name", "transcription", "keywords"}

// ImportCSV imports an MTSamples-format CSV, keeping rows whose specialty is
// one of the configured specialties and whose transcription is not blank.
// Rows are ingested in file order.
func (i *Importer) ImportCSV(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeImportFileFailure, "failed to open csv", surgerr.Field("path", path))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeImportInputInvalid, "failed to read csv header", surgerr.Field("path", path))
	}
	col := make(map[string]int, len(header))
	for n, name := range header {
		col[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = n
	}
	for _, name := range csvColumns {
		if _, ok := col[name]; !ok {
			return nil, surgerr.New(surgerr.CodeImportInputInvalid, "csv is missing column "+name, surgerr.Field("path", path))
		}
	}

	wanted := make(map[string]bool, len(i.cfg.CSVSpecialties))
	for _, s := range i.cfg.CSVSpecialties {
		wanted[s] = true
	}

	field := func(row []string, name string) string {
		if n := col[name]; n < len(row) {
			return strings.TrimSpace(row[n])
		}
		return ""
	}

	result := &ImportResult{}
	for rowNum := 1; ; rowNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, surgerr.Wrap(err, surgerr.CodeImportInputInvalid, "malformed csv row", surgerr.Field("row", rowNum))
		}

		specialty := field(row, "medical_specialty")
		if !wanted[specialty] {
			continue
		}
		text := field(row, "transcription")
		if text == "" {
			continue
		}
		procedure := field(row, "description")
		if procedure == "" {
			procedure = "Unknown"
		}

		fr := FileResult{
			File:          fmt.Sprintf("%s#%d", filepath.Base(path), rowNum),
			ProcedureType: procedure,
			Specialty:     specialty,
		}
		res, err := i.ingestor.Add(ctx, domain.NewReport{
			ProcedureType:  procedure,
			Specialty:      specialty,
			ReportName:     field(row, "sample_name"),
			ReportText:     text,
			Keywords:       field(row, "keywords"),
			Source:         i.cfg.CSVSource,
			IsDeidentified: true,
		})
		result.add(i.finish(fr, res, err))
		if i.progress != nil {
			i.progress(len(result.Files), 0)
		}
	}

	i.logger.Info("csv import complete", zap.String("path", path),
		zap.Int("success", result.Success), zap.Int("failed", result.Failed))
	return result, nil
}
