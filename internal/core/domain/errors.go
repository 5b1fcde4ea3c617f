// Package domain defines the core error catalog for reactq.
package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// DomainError represents a checkpoint domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "RQ-FMT-1001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Format Errors (FMT)
// Fatal, non-retryable. Always reported through FormatError.
// ============================================================================

var (
	// ErrMissingHeader indicates the checkpoint magic bytes are absent or wrong.
	ErrMissingHeader = NewDomainError("RQ-FMT-1001", "missing checkpoint header")

	// ErrUnsupportedVersion indicates the format version is below the supported floor.
	ErrUnsupportedVersion = NewDomainError("RQ-FMT-1002", "unsupported checkpoint format version")

	// ErrMissingVersion indicates the stream ended inside the format version.
	ErrMissingVersion = NewDomainError("RQ-FMT-1003", "missing checkpoint format version")

	// ErrMissingFlags indicates the stream ended inside the flags field.
	ErrMissingFlags = NewDomainError("RQ-FMT-1004", "missing checkpoint flags")

	// ErrMissingSerializer indicates the serializer identity could not be read.
	ErrMissingSerializer = NewDomainError("RQ-FMT-1005", "missing serializer identity")

	// ErrMissingTerminator indicates the footer bytes did not match.
	ErrMissingTerminator = NewDomainError("RQ-FMT-1006", "missing checkpoint terminator")

	// ErrMissingLengthPrefix indicates a frame had no length prefix.
	ErrMissingLengthPrefix = NewDomainError("RQ-FMT-1007", "missing frame length prefix")

	// ErrFrameOverrun indicates a frame declared more bytes than the stream holds.
	ErrFrameOverrun = NewDomainError("RQ-FMT-1008", "frame length exceeds stream")

	// ErrUnknownSerializer indicates the policy has no serializer for a name/version pair.
	ErrUnknownSerializer = NewDomainError("RQ-FMT-1009", "unknown serializer")

	// ErrUnsupportedType indicates the serializer has no codec for a value type.
	ErrUnsupportedType = NewDomainError("RQ-FMT-1010", "unsupported value type")

	// ErrCorruptValue indicates a value payload that does not decode.
	ErrCorruptValue = NewDomainError("RQ-FMT-1011", "corrupt value payload")
)

// ============================================================================
// Template Errors (TPL)
// ============================================================================

var (
	// ErrTemplateNotFound indicates a templatized expression referenced an unknown template.
	ErrTemplateNotFound = NewDomainError("RQ-TPL-4040", "expression template not found")

	// ErrInvalidTemplateArgument indicates the template argument is not a tuple.
	ErrInvalidTemplateArgument = NewDomainError("RQ-TPL-4001", "invalid template argument")

	// ErrUnsupportedBinding indicates a tuple component kind that cannot be encoded.
	ErrUnsupportedBinding = NewDomainError("RQ-TPL-4002", "unsupported template binding")
)

// ============================================================================
// Entity Errors (ENT)
// ============================================================================

var (
	// ErrUnknownEntityKind indicates an entity kind discriminator with no mapping.
	ErrUnknownEntityKind = NewDomainError("RQ-ENT-4001", "unknown reactive entity kind")

	// ErrEntityConflict indicates an entity URI is already defined.
	ErrEntityConflict = NewDomainError("RQ-ENT-4090", "entity already defined")

	// ErrEntityNotFound indicates an entity URI is not defined.
	ErrEntityNotFound = NewDomainError("RQ-ENT-4040", "entity not found")
)

// ============================================================================
// Key/Value Store Errors (KV)
// Logical failures surfaced on reified operation results.
// ============================================================================

var (
	// ErrKeyAlreadyExists indicates Add found the key present.
	ErrKeyAlreadyExists = NewDomainError("RQ-KV-4090", "key already exists")

	// ErrKeyNotFound indicates Get/Remove/Update found the key absent.
	ErrKeyNotFound = NewDomainError("RQ-KV-4040", "key not found")
)

// ============================================================================
// Checkpoint Session Errors (CKPT)
// ============================================================================

var (
	// ErrNoFullCheckpoint indicates a differential checkpoint without a prior full one.
	ErrNoFullCheckpoint = NewDomainError("RQ-CKPT-4001", "differential checkpoint requires a prior full checkpoint")

	// ErrWriterClosed indicates a state writer was used after commit or rollback.
	ErrWriterClosed = NewDomainError("RQ-CKPT-4002", "state writer closed")

	// ErrCheckpointFailed indicates a checkpoint session aborted.
	ErrCheckpointFailed = NewDomainError("RQ-CKPT-5000", "checkpoint failed")

	// ErrRecoveryFailed indicates a recovery session aborted.
	ErrRecoveryFailed = NewDomainError("RQ-CKPT-5001", "recovery failed")
)

// maxBlobDump bounds the diagnostic snippet attached to format errors.
const maxBlobDump = 256

// FormatError annotates a format failure with forensic context.
type FormatError struct {
	Err             *DomainError
	Position        int64
	Operator        string
	OperatorVersion string
	Blob            []byte
}

// NewFormatError creates a FormatError. The blob is truncated to its last
// 256 bytes.
func NewFormatError(err *DomainError, position int64, blob []byte) *FormatError {
	if len(blob) > maxBlobDump {
		blob = blob[len(blob)-maxBlobDump:]
	}
	return &FormatError{
		Err:      err,
		Position: position,
		Blob:     append([]byte(nil), blob...),
	}
}

// WithOperator returns a copy of the error annotated with the operator identity.
func (e *FormatError) WithOperator(name, version string) *FormatError {
	c := *e
	c.Operator = name
	c.OperatorVersion = version
	return &c
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s at position %d", e.Err.Error(), e.Position)
	if e.Operator != "" {
		msg += fmt.Sprintf(" (operator %s/%s)", e.Operator, e.OperatorVersion)
	}
	if len(e.Blob) > 0 {
		msg += " blob=" + e.BlobBase64()
	}
	return msg
}

// BlobBase64 returns the diagnostic snippet encoded as base64.
func (e *FormatError) BlobBase64() string {
	return base64.StdEncoding.EncodeToString(e.Blob)
}

// Unwrap returns the catalog error so errors.Is matches by code.
func (e *FormatError) Unwrap() error {
	return e.Err
}
