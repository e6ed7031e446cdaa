package vectorindex

import (
	"strings"

	"go.uber.org/zap"

	"surgrag/config"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

// Open builds the backend named by cfg.Backend. path is the resolved
// location for persistent backends.
func Open(cfg config.IndexConfig, path string, encoder port.Encoder, logger *zap.Logger) (port.VectorIndex, error) {
	opts := Options{
		Collection: cfg.Collection,
		Dimension:  encoder.Dimension(),
		Model:      encoder.ModelName(),
		Logger:     logger,
	}

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return NewMemoryIndex(opts.Collection, opts.Dimension), nil
	case "", "bolt":
		return OpenBolt(path, opts)
	case "sqlitevec":
		return OpenSQLiteVec(path, opts)
	}
	return nil, surgerr.New(surgerr.CodeIndexConfigInvalid, "unknown index backend: "+cfg.Backend,
		surgerr.FieldBackend(cfg.Backend))
}

// MigrationOf reports the migration state of persistent backends.
func MigrationOf(idx port.VectorIndex) MigrationResult {
	if m, ok := idx.(interface{ Migration() MigrationResult }); ok {
		return m.Migration()
	}
	return MigrationResult{}
}
