package vectorindex

import "fmt"

// SchemaVersion is the on-disk layout version of persisted collections.
// Increment this when making breaking changes to the storage format.
const SchemaVersion = 1

// CollectionMeta is persisted next to a collection so a later process can
// tell whether its vectors were produced by the same encoder.
type CollectionMeta struct {
	SchemaVersion int    `json:"schema_version"`
	Model         string `json:"model"`
	Dimension     int    `json:"dimension"`
}

// MigrationResult describes how a stored collection relates to the running encoder.
type MigrationResult struct {
	NeedsRebuild      bool
	DimensionMismatch bool // writes and queries are refused until DropAndRecreate
	Reason            string
}

// CheckMeta compares stored meta against the current encoder. A nil stored
// meta means a fresh collection.
func CheckMeta(stored *CollectionMeta, current CollectionMeta) MigrationResult {
	var result MigrationResult
	if stored == nil {
		return result
	}

	switch {
	case stored.Dimension != current.Dimension:
		result.NeedsRebuild = true
		result.DimensionMismatch = true
		result.Reason = fmt.Sprintf("embedding dimension changed from %d to %d", stored.Dimension, current.Dimension)
	case stored.SchemaVersion > current.SchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("collection created by newer version (v%d > v%d)", stored.SchemaVersion, current.SchemaVersion)
	case stored.SchemaVersion < current.SchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", stored.SchemaVersion, current.SchemaVersion)
	case stored.Model != current.Model:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding model changed from %q to %q", stored.Model, current.Model)
	}
	return result
}
