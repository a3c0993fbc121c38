//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package sal

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrorCode is the library's error taxonomy, exported across the package
// boundary. It is a tagged variant: values below osErrorTag are library
// errors, values at or above osErrorTag carry a passthrough OS errno in
// their low bits.
type ErrorCode uint32

// osErrorTag reserves the high bit of the error space to distinguish an
// OS-level errno (tagged) from a library-defined code (untagged), per
// spec.md's "reserved high bit" requirement and DESIGN NOTES §9's
// {Library(code) | Os(code)} redesign of the error taxonomy.
const osErrorTag ErrorCode = 1 << 31

// Library error codes.
const (
	ErrNone ErrorCode = iota
	ErrNullPtr
	ErrBadString
	ErrBadSocket
	ErrBadBufLen
	ErrInvalidArg
	ErrNotInit
	ErrDupeInit
	ErrAsyncNotInit
	ErrAsyncDupeInit
	ErrAsyncNoSocket
	ErrBadEventMask
	ErrInternal
	ErrUnavailable
	errDupeReg // internal only: register() conflict, never returned raw to callers
)

var codeText = map[ErrorCode]string{
	ErrNone:          "no error",
	ErrNullPtr:       "a required pointer argument was nil",
	ErrBadString:     "invalid or malformed string argument",
	ErrBadSocket:     "invalid socket descriptor",
	ErrBadBufLen:     "invalid buffer length",
	ErrInvalidArg:    "invalid argument",
	ErrNotInit:       "library not initialized",
	ErrDupeInit:      "library already initialized",
	ErrAsyncNotInit:  "async event system not initialized",
	ErrAsyncDupeInit: "async event system already initialized",
	ErrAsyncNoSocket: "no such socket registered with async event system",
	ErrBadEventMask:  "invalid or unknown event mask",
	ErrInternal:      "internal library error",
	ErrUnavailable:   "requested capability is unavailable on this platform",
	errDupeReg:       "socket is already registered or has a pending registration",
}

// OSError wraps an OS-level errno so it can travel through the library's
// ErrorCode channel (spec.md §6: "plus passthrough of OS-level numeric
// codes distinguished by a reserved high bit").
func OSError(errno int) ErrorCode {
	return osErrorTag | ErrorCode(errno&0x7fffffff)
}

// IsOSError reports whether code carries a passthrough OS errno.
func (c ErrorCode) IsOSError() bool {
	return c&osErrorTag != 0
}

// Errno extracts the OS errno from an OS-tagged ErrorCode. The result is
// meaningless if IsOSError is false.
func (c ErrorCode) Errno() int {
	return int(c &^ osErrorTag)
}

// String returns a short, non-empty description of the error code.
func (c ErrorCode) String() string {
	if c.IsOSError() {
		return fmt.Sprintf("OS error %d", c.Errno())
	}
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// Error is the concrete error type returned by public library functions.
// It carries the originating function/file/line so GetLastErrorExtended
// can produce the extended description spec.md §7 requires.
type Error struct {
	Code ErrorCode
	Func string
	File string
	Line int
	// cause is the underlying Go error, if any (e.g. a syscall error),
	// wrapped with github.com/pkg/errors for INTERNAL-class diagnostics.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code.String()
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Extended returns the extended description: code, short description, and
// the call site that raised it.
func (e *Error) Extended() string {
	return fmt.Sprintf("%d (%s) at %s:%d in %s", uint32(e.Code), e.Code.String(), e.File, e.Line, e.Func)
}

// newError wraps code with call-site information and an optional cause,
// matching github.com/pkg/errors's convention of attaching a stack only
// where diagnostically useful (INTERNAL-class errors).
func newError(code ErrorCode, cause error, fn, file string, line int) *Error {
	if cause != nil && code == ErrInternal {
		cause = pkgerrors.WithStack(cause)
	}
	return &Error{Code: code, Func: fn, File: file, Line: line, cause: cause}
}
