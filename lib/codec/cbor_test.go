// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type helloSample struct {
	Name   string `cbor:"name"`
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Format string `cbor:"format"`
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	value := map[string]any{"width": 800, "height": 600, "format": "xrgb8888"}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding differs between calls")
		}
	}
}

func TestDecodeIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()

	data, err := Marshal(helloSample{Name: "headless", Width: 800, Height: 600, Format: "xrgb8888"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type: got %T, want map[string]any", decoded)
	}
	if fields["name"] != "headless" {
		t.Errorf("name: got %v, want headless", fields["name"])
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, width := range []int{640, 800} {
		if err := encoder.Encode(helloSample{Width: width}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []int{640, 800} {
		var got helloSample
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Width != want {
			t.Errorf("width: got %d, want %d", got.Width, want)
		}
	}
}
