// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"errors"
	"testing"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    Version
		wantErr bool
	}{
		{"RFB 003.003\n", 3, false},
		{"RFB 003.005\n", 3, false},
		{"RFB 003.007\n", 7, false},
		{"RFB 003.008\n", 8, false},
		{"RFB 003.889\n", 8, false},
		{"RFB 004.001\n", 0, true},
		{"RFB 003.008 ", 0, true},
		{"HTTP/1.1 200", 0, true},
		{"RFB 00x.008\n", 0, true},
	}
	for _, test := range tests {
		got, err := parseVersion([]byte(test.message))
		if test.wantErr {
			if !errors.Is(err, ErrUnsupportedVersion) {
				t.Errorf("parseVersion(%q): got %v, want ErrUnsupportedVersion", test.message, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseVersion(%q): %v", test.message, err)
			continue
		}
		if got != test.want {
			t.Errorf("parseVersion(%q): got %v, want %v", test.message, got, test.want)
		}
	}
}

func TestUpdateRequestMerge(t *testing.T) {
	t.Parallel()

	pending := updateRequest{incremental: true, rect: pixel.Rect{X: 0, Y: 0, Width: 10, Height: 10}}
	merged := pending.merge(updateRequest{incremental: false, rect: pixel.Rect{X: 20, Y: 5, Width: 5, Height: 20}})
	if merged.incremental {
		t.Error("merging a full request kept the result incremental")
	}
	if want := (pixel.Rect{X: 0, Y: 0, Width: 25, Height: 25}); merged.rect != want {
		t.Errorf("merged rect: got %v, want %v", merged.rect, want)
	}
}
