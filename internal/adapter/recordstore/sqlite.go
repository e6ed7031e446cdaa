// Package recordstore holds the authoritative report store.
package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

const defaultSearchLimit = 100

const schemaDDL = `
CREATE TABLE IF NOT EXISTS reports (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	procedure_type  TEXT NOT NULL,
	specialty       TEXT NOT NULL,
	report_name     TEXT,
	report_text     TEXT NOT NULL,
	keywords        TEXT,
	source          TEXT NOT NULL,
	is_deidentified BOOLEAN DEFAULT TRUE,
	added_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const reportColumns = `id, procedure_type, specialty, report_name, report_text, keywords, source, is_deidentified, added_at`

// SQLiteStore stores reports in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the report database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "open record store",
			surgerr.Field("path", path))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "ping record store",
			surgerr.Field("path", path))
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "create reports table")
	}
	return &SQLiteStore{db: db, path: path, logger: logger.With(zap.String("store", "sqlite"))}, nil
}

func (s *SQLiteStore) AddReport(ctx context.Context, r domain.NewReport) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO reports (procedure_type, specialty, report_name, report_text, keywords, source, is_deidentified)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ProcedureType, r.Specialty, nullable(r.ReportName), r.ReportText, nullable(r.Keywords), r.Source, r.IsDeidentified)
	if err != nil {
		return 0, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "insert report")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "read inserted id")
	}
	s.logger.Debug("report stored", zap.Int64("id", id), zap.String("specialty", r.Specialty))
	return id, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id int64) (domain.Report, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, false, nil
	}
	if err != nil {
		return domain.Report{}, false, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "get report",
			surgerr.FieldRecordID(id))
	}
	return r, true, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id int64) (domain.Record, bool, error) {
	r, ok, err := s.GetReport(ctx, id)
	return r.Record(), ok, err
}

// ListRecords pages through reports in id order.
func (s *SQLiteStore) ListRecords(ctx context.Context, pageSize, offset int) ([]domain.Record, error) {
	if pageSize <= 0 || offset < 0 {
		return nil, surgerr.New(surgerr.CodeStoreInputInvalid,
			fmt.Sprintf("invalid page (size %d, offset %d)", pageSize, offset))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_text, procedure_type, specialty FROM reports ORDER BY id LIMIT ? OFFSET ?`,
		pageSize, offset)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "list records")
	}
	defer rows.Close()

	records := make([]domain.Record, 0, pageSize)
	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.ID, &r.Text, &r.ProcedureType, &r.Specialty); err != nil {
			return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "scan record")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "iterate records")
	}
	return records, nil
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return false, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "delete report",
			surgerr.FieldRecordID(id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "read affected rows")
	}
	return n > 0, nil
}

// SearchReports matches specialty, procedure type and keywords by substring
// and source exactly.
func (s *SQLiteStore) SearchReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error) {
	var (
		where []string
		args  []any
	)
	if q.Specialty != "" {
		where = append(where, "specialty LIKE ?")
		args = append(args, "%"+q.Specialty+"%")
	}
	if q.ProcedureType != "" {
		where = append(where, "procedure_type LIKE ?")
		args = append(args, "%"+q.ProcedureType+"%")
	}
	if q.Keyword != "" {
		where = append(where, "keywords LIKE ?")
		args = append(args, "%"+q.Keyword+"%")
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "search reports")
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "scan report")
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "iterate reports")
	}
	return reports, nil
}

func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM reports GROUP BY source`)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "count by source")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "scan source count")
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "iterate source counts")
	}
	return counts, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, surgerr.Wrap(err, surgerr.CodeStoreDatabaseFailure, "count reports")
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (domain.Report, error) {
	var (
		r          domain.Report
		name, keys sql.NullString
		deid       sql.NullBool
		addedAt    sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.ProcedureType, &r.Specialty, &name, &r.ReportText, &keys, &r.Source, &deid, &addedAt); err != nil {
		return domain.Report{}, err
	}
	r.ReportName = name.String
	r.Keywords = keys.String
	r.IsDeidentified = !deid.Valid || deid.Bool
	if addedAt.Valid {
		r.AddedAt = addedAt.Time.UTC()
	}
	return r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
