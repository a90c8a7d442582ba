// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. main()
// calls it with the error returned by run().
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}

// ExitCode maps an error to a process exit status. Errors carrying
// their own status (see WithExitCode) keep it; everything else is 1.
func ExitCode(err error) int {
	var coded *codedError
	if err != nil && asCoded(err, &coded) {
		return coded.code
	}
	if err == nil {
		return 0
	}
	return 1
}
