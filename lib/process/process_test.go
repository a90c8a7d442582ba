// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	base := errors.New("bridge unreachable")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", base, 1},
		{"coded", WithExitCode(base, 3), 3},
		{"wrapped coded", fmt.Errorf("status: %w", WithExitCode(base, 2)), 2},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("%s: got %d, want %d", test.name, got, test.want)
		}
	}
	if !errors.Is(WithExitCode(base, 3), base) {
		t.Error("WithExitCode hides the wrapped error from errors.Is")
	}
	if WithExitCode(nil, 3) != nil {
		t.Error("WithExitCode(nil) returned a non-nil error")
	}
}
