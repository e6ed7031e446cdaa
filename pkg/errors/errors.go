// Package errors carries machine-readable error codes for surgrag.
//
// Codes follow a "<area>.<operation>.<reason>" scheme. Callers branch on the
// kind of failure with the Is* helpers instead of matching message text.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeEmbeddingEncodeFailure  Code = "embedding.encode.failure"
	CodeEmbeddingConfigInvalid  Code = "embedding.config.invalid"
	CodeIndexBackendUnavailable Code = "index.backend.unavailable"
	CodeIndexDimensionMismatch  Code = "index.dimension.mismatch"
	CodeIndexConfigInvalid      Code = "index.config.invalid"
	CodeQueryInputEmpty         Code = "query.input.empty"
	CodeQueryInputInvalid       Code = "query.input.invalid"
	CodeSyncIndexDrift          Code = "sync.index.drift"
	CodeSyncRebuildInterrupted  Code = "sync.rebuild.interrupted"

	CodeStoreRecordNotFound  Code = "store.record.not_found"
	CodeStoreInputInvalid    Code = "store.input.invalid"
	CodeStoreDatabaseFailure Code = "store.database.failure"

	CodeImportFileFailure  Code = "import.file.failure"
	CodeImportInputInvalid Code = "import.input.invalid"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldRecordID(id int64) Attr {
	return Field("record_id", id)
}

func FieldCollection(name string) Attr {
	return Field("collection", name)
}

func FieldBackend(name string) Attr {
	return Field("backend", name)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap wraps err with code. oops reports the deepest code in a wrap chain, so
// when err is already coded the new code is invisible to CodeOf, HasCode and
// the Is helpers. Use Mark to add a second kind to a coded cause.
func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// Mark layers a new error kind on top of err while keeping the kinds already
// present in err detectable. oops reports the innermost code of a wrap chain,
// so the outer kind is joined next to the cause instead of wrapping it.
func Mark(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return stderrors.Join(New(code, msg, fields...), err)
}

// CodeOf returns the innermost code carried by err, or "" when err is not coded.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return codeString(oopsErr.Code())
}

// FieldsOf returns the structured context attached along the error chain.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

// HasCode reports whether any error in err's tree carries code.
func HasCode(err error, code Code) bool {
	found := false
	walk(err, func(e error) bool {
		if oe, ok := e.(oops.OopsError); ok && codeString(oe.Code()) == code {
			found = true
			return false
		}
		return true
	})
	return found
}

func IsEncodingError(err error) bool {
	return HasCode(err, CodeEmbeddingEncodeFailure)
}

func IsIndexUnavailable(err error) bool {
	return HasCode(err, CodeIndexBackendUnavailable)
}

func IsDimensionMismatch(err error) bool {
	return HasCode(err, CodeIndexDimensionMismatch)
}

func IsEmptyQuery(err error) bool {
	return HasCode(err, CodeQueryInputEmpty)
}

func IsDrift(err error) bool {
	return HasCode(err, CodeSyncIndexDrift)
}

func IsRebuildInterrupted(err error) bool {
	return HasCode(err, CodeSyncRebuildInterrupted)
}

func IsNotFound(err error) bool {
	return hasReason(err, "not_found")
}

func IsInvalidInput(err error) bool {
	return hasReason(err, "invalid", "invalid_input", "invalid_value", "invalid_format", "empty")
}

// walk visits err and everything it wraps, depth first. visit returns false to stop.
func walk(err error, visit func(error) bool) bool {
	if err == nil {
		return true
	}
	if !visit(err) {
		return false
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			if !walk(child, visit) {
				return false
			}
		}
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), visit)
	}
	return true
}

func hasReason(err error, reasons ...string) bool {
	found := false
	walk(err, func(e error) bool {
		oe, ok := e.(oops.OopsError)
		if !ok {
			return true
		}
		r := reason(codeString(oe.Code()))
		for _, want := range reasons {
			if r == want {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func codeString(v any) Code {
	switch c := v.(type) {
	case nil:
		return ""
	case Code:
		return c
	case string:
		return Code(c)
	default:
		return Code(fmt.Sprintf("%v", c))
	}
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
