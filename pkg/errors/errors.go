package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// CodeTransaction marks recorder misuse: Emit called without an active
	// transaction. Programmer error, never retried.
	CodeTransaction Code = "TRANSACTION_ERROR"
	// CodeSerialization marks an unencodable payload. Never retried.
	CodeSerialization Code = "SERIALIZATION_ERROR"
	// CodeTransientBroker marks broker/network unavailability. Retried with backoff.
	CodeTransientBroker Code = "TRANSIENT_BROKER_ERROR"
	// CodePermanentHandler marks a handler failure that survived its retry
	// budget; the message is dead-lettered.
	CodePermanentHandler Code = "PERMANENT_HANDLER_ERROR"
	// CodeStorageUnavailable marks a dead-letter store failure. Fatal: the
	// owning consumer halts rather than drop the message.
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable bool
	Fatal     bool
}

var metadataByCode = map[Code]Metadata{
	CodeTransaction:        {Retryable: false},
	CodeSerialization:      {Retryable: false},
	CodeTransientBroker:    {Retryable: true},
	CodePermanentHandler:   {Retryable: false},
	CodeStorageUnavailable: {Retryable: false, Fatal: true},
	CodeInternal:           {Retryable: true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf extracts the relay code from an error chain, defaulting to internal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// Retryable reports whether the error is worth another delivery attempt.
func Retryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}

// Fatal reports whether the error must halt the owning loop.
func Fatal(err error) bool {
	return MetadataFor(CodeOf(err)).Fatal
}
