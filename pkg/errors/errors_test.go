package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	surgerr "surgrag/pkg/errors"
)

func TestNewCarriesCodeAndFields(t *testing.T) {
	err := surgerr.New(surgerr.CodeIndexBackendUnavailable, "bolt closed",
		surgerr.FieldCollection("medical_reports"),
		surgerr.FieldRecordID(7),
	)

	require.Error(t, err)
	assert.Equal(t, surgerr.CodeIndexBackendUnavailable, surgerr.CodeOf(err))
	fields := surgerr.FieldsOf(err)
	assert.Equal(t, "medical_reports", fields["collection"])
	assert.Equal(t, int64(7), fields["record_id"])
	assert.True(t, surgerr.IsIndexUnavailable(err))
	assert.False(t, surgerr.IsEncodingError(err))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := surgerr.Wrap(cause, surgerr.CodeStoreDatabaseFailure, "insert report")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, surgerr.CodeStoreDatabaseFailure, surgerr.CodeOf(err))
	assert.Nil(t, surgerr.Wrap(nil, surgerr.CodeStoreDatabaseFailure, "noop"))
}

func TestMarkKeepsBothKinds(t *testing.T) {
	cause := surgerr.New(surgerr.CodeIndexBackendUnavailable, "backend down")
	err := surgerr.Mark(cause, surgerr.CodeSyncIndexDrift, "record stored but not indexed",
		surgerr.FieldRecordID(3))

	assert.True(t, surgerr.IsDrift(err))
	assert.True(t, surgerr.IsIndexUnavailable(err))
	assert.False(t, surgerr.IsRebuildInterrupted(err))
	assert.Nil(t, surgerr.Mark(nil, surgerr.CodeSyncIndexDrift, "noop"))
}

func TestWrapOverCodedCauseHidesOuterCode(t *testing.T) {
	cause := surgerr.New(surgerr.CodeIndexBackendUnavailable, "backend down")

	wrapped := surgerr.Wrap(cause, surgerr.CodeSyncIndexDrift, "record stored but not indexed")
	assert.Equal(t, surgerr.CodeIndexBackendUnavailable, surgerr.CodeOf(wrapped))
	assert.True(t, surgerr.IsIndexUnavailable(wrapped))
	assert.False(t, surgerr.IsDrift(wrapped), "deepest code wins")

	marked := surgerr.Mark(cause, surgerr.CodeSyncIndexDrift, "record stored but not indexed")
	assert.True(t, surgerr.IsDrift(marked))
	assert.True(t, surgerr.IsIndexUnavailable(marked))
	assert.Equal(t, surgerr.CodeSyncIndexDrift, surgerr.CodeOf(marked))
}

func TestHasCodeThroughStdlibWrapping(t *testing.T) {
	inner := surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "too long")
	outer := fmt.Errorf("rebuild page 2: %w", inner)

	assert.True(t, surgerr.IsEncodingError(outer))
	assert.False(t, surgerr.HasCode(stderrors.New("plain"), surgerr.CodeEmbeddingEncodeFailure))
	assert.False(t, surgerr.HasCode(nil, surgerr.CodeEmbeddingEncodeFailure))
}

func TestReasonHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
		invalid  bool
	}{
		{"not found", surgerr.New(surgerr.CodeStoreRecordNotFound, "missing"), true, false},
		{"invalid", surgerr.New(surgerr.CodeStoreInputInvalid, "bad"), false, true},
		{"empty query", surgerr.New(surgerr.CodeQueryInputEmpty, "blank"), false, true},
		{"backend", surgerr.New(surgerr.CodeIndexBackendUnavailable, "down"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, surgerr.IsNotFound(tt.err))
			assert.Equal(t, tt.invalid, surgerr.IsInvalidInput(tt.err))
		})
	}
}

func TestCodeOfUncoded(t *testing.T) {
	assert.Equal(t, surgerr.Code(""), surgerr.CodeOf(nil))
	assert.Equal(t, surgerr.Code(""), surgerr.CodeOf(stderrors.New("plain")))
}
