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
	"runtime"

	"github.com/aremmell/sal/internal/lasterror"
)

// setLast records err as the calling goroutine's last error and returns it
// unchanged, so call sites can `return setLast(newError(...))`.
func setLast(err *Error) *Error {
	lasterror.Set(uint32(err.Code), err.Extended())
	return err
}

// fail is the common call-site helper: builds an Error from the immediate
// caller's location, records it as the last error, and returns it.
func fail(code ErrorCode, cause error) *Error {
	fn, file, line := callerInfo(2)
	return setLast(newError(code, cause, fn, file, line))
}

func callerInfo(skip int) (fn, file string, line int) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", "unknown", 0
	}
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return fn, file, line
}

// GetLastError returns the ErrorCode most recently recorded by a library
// call on the calling goroutine, and its short description.
func GetLastError() (ErrorCode, string) {
	e, ok := lasterror.Get()
	if !ok {
		return ErrNone, ErrNone.String()
	}
	code := ErrorCode(e.Code)
	return code, code.String()
}

// GetLastErrorExtended returns the same ErrorCode as GetLastError, plus an
// extended description. For an error raised by a library call that
// description includes the function/file/line that raised it; after
// SetLastError it is the code's short description.
func GetLastErrorExtended() (ErrorCode, string) {
	e, ok := lasterror.Get()
	if !ok {
		return ErrNone, ErrNone.String()
	}
	return ErrorCode(e.Code), e.Text
}

// SetLastError manually sets the calling goroutine's last error. Exposed
// primarily for tests exercising R3's round-trip property.
func SetLastError(code ErrorCode) {
	lasterror.Set(uint32(code), code.String())
}
