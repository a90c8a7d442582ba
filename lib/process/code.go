// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package process

import "errors"

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// WithExitCode attaches an exit status to err. The control CLI uses
// status 2 for usage errors and 3 when the bridge is unreachable.
func WithExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &codedError{err: err, code: code}
}

func asCoded(err error, target **codedError) bool {
	return errors.As(err, target)
}
