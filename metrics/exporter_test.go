// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/rfb"
)

func TestExportIncludesProviders(t *testing.T) {
	t.Parallel()

	exporter := NewExporter().
		WithFrames(func() bridge.Stats {
			return bridge.Stats{Published: 12, Coalesced: 3, Width: 800, Height: 600}
		}).
		WithViewers(func() rfb.Stats {
			return rfb.Stats{Connected: 2, BytesSent: 4096}
		}).
		WithInputQueue(func() input.QueueStats {
			return input.QueueStats{Dropped: 7, Capacity: 256}
		}).
		WithInputDelivery(func() input.BridgeStats {
			return input.BridgeStats{Injected: 40}
		})

	output := string(exporter.Export())
	for _, want := range []string{
		"termuxwc_frames_published_total 12\n",
		"termuxwc_frames_coalesced_total 3\n",
		"termuxwc_output_width_pixels 800\n",
		"termuxwc_viewers_connected 2\n",
		"termuxwc_viewer_sent_bytes_total 4096\n",
		"termuxwc_input_dropped_total 7\n",
		"termuxwc_input_queue_capacity 256\n",
		"termuxwc_input_injected_total 40\n",
		"# TYPE termuxwc_frames_published_total counter\n",
		"# TYPE termuxwc_viewers_connected gauge\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output lacks %q:\n%s", want, output)
		}
	}
}

func TestExportOmitsMissingProviders(t *testing.T) {
	t.Parallel()

	output := string(NewExporter().Export())
	if !strings.Contains(output, "termuxwc_build_info{version=") {
		t.Errorf("build info missing:\n%s", output)
	}
	for _, absent := range []string{"termuxwc_frames_", "termuxwc_viewers_", "termuxwc_input_"} {
		if strings.Contains(output, absent) {
			t.Errorf("output has %s metrics without a provider:\n%s", absent, output)
		}
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	exporter := NewExporter().WithViewers(func() rfb.Stats { return rfb.Stats{Connected: 1} })
	recorder := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	response := recorder.Result()
	if got := response.Header.Get("Content-Type"); got != ContentType {
		t.Errorf("Content-Type: got %q, want %q", got, ContentType)
	}
	body, _ := io.ReadAll(response.Body)
	if !strings.Contains(string(body), "termuxwc_viewers_connected 1\n") {
		t.Errorf("body:\n%s", body)
	}
}
