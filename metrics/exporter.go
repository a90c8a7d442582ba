// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/version"
	"github.com/termuxwc/termuxwc/rfb"
)

// ContentType is the media type of Export's output.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders metrics from the snapshot providers it was given.
type Exporter struct {
	frames   func() bridge.Stats
	viewers  func() rfb.Stats
	queue    func() input.QueueStats
	delivery func() input.BridgeStats
}

// NewExporter returns an exporter with no providers.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WithFrames enables the frame bridge metrics.
func (e *Exporter) WithFrames(provider func() bridge.Stats) *Exporter {
	e.frames = provider
	return e
}

// WithViewers enables the viewer server metrics.
func (e *Exporter) WithViewers(provider func() rfb.Stats) *Exporter {
	e.viewers = provider
	return e
}

// WithInputQueue enables the input queue metrics.
func (e *Exporter) WithInputQueue(provider func() input.QueueStats) *Exporter {
	e.queue = provider
	return e
}

// WithInputDelivery enables the input bridge metrics.
func (e *Exporter) WithInputDelivery(provider func() input.BridgeStats) *Exporter {
	e.delivery = provider
	return e
}

// Export produces the metrics payload.
func (e *Exporter) Export() []byte {
	var buf bytes.Buffer

	writeMetric(&buf, "termuxwc_build_info", "gauge",
		"Build information; the value is always 1.",
		fmt.Sprintf("{version=%q}", version.Short()), 1)
	e.writeFrameMetrics(&buf)
	e.writeViewerMetrics(&buf)
	e.writeInputMetrics(&buf)

	return buf.Bytes()
}

// Handler serves Export over HTTP.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		w.Write(e.Export())
	})
}

func (e *Exporter) writeFrameMetrics(buf *bytes.Buffer) {
	if e.frames == nil {
		return
	}
	stats := e.frames()

	writeMetric(buf, "termuxwc_frames_committed_total", "counter",
		"Frames committed by the compositor.", "", stats.Committed)
	writeMetric(buf, "termuxwc_frames_coalesced_total", "counter",
		"Frames replaced in the source slot before the bridge collected them.", "", stats.Coalesced)
	writeMetric(buf, "termuxwc_frames_published_total", "counter",
		"Frames published to viewers.", "", stats.Published)
	writeMetric(buf, "termuxwc_frames_unchanged_total", "counter",
		"Frames skipped because nothing changed.", "", stats.Unchanged)
	writeMetric(buf, "termuxwc_output_resizes_total", "counter",
		"Output size changes.", "", stats.Resizes)
	writeMetric(buf, "termuxwc_frame_sequence", "gauge",
		"Sequence number of the current frame.", "", stats.Seq)
	writeMetric(buf, "termuxwc_output_width_pixels", "gauge",
		"Width of the current frame.", "", stats.Width)
	writeMetric(buf, "termuxwc_output_height_pixels", "gauge",
		"Height of the current frame.", "", stats.Height)
	writeMetric(buf, "termuxwc_frame_subscribers", "gauge",
		"Open frame subscriptions.", "", stats.Subscribers)
}

func (e *Exporter) writeViewerMetrics(buf *bytes.Buffer) {
	if e.viewers == nil {
		return
	}
	stats := e.viewers()

	writeMetric(buf, "termuxwc_viewers_connected", "gauge",
		"Viewers currently connected.", "", stats.Connected)
	writeMetric(buf, "termuxwc_viewers_accepted_total", "counter",
		"Viewers that completed the handshake.", "", stats.Accepted)
	writeMetric(buf, "termuxwc_viewers_rejected_total", "counter",
		"Connections that failed the handshake.", "", stats.Rejected)
	writeMetric(buf, "termuxwc_viewers_disconnected_total", "counter",
		"Viewers that left or were dropped.", "", stats.Disconnected)
	writeMetric(buf, "termuxwc_viewer_write_timeouts_total", "counter",
		"Viewers dropped for not accepting an update in time.", "", stats.WriteTimeouts)
	writeMetric(buf, "termuxwc_viewer_updates_total", "counter",
		"Framebuffer updates sent.", "", stats.Updates)
	writeMetric(buf, "termuxwc_viewer_sent_bytes_total", "counter",
		"Bytes written to viewers.", "", stats.BytesSent)
}

func (e *Exporter) writeInputMetrics(buf *bytes.Buffer) {
	if e.queue != nil {
		stats := e.queue()
		writeMetric(buf, "termuxwc_input_pushed_total", "counter",
			"Input events queued by viewers.", "", stats.Pushed)
		writeMetric(buf, "termuxwc_input_dropped_total", "counter",
			"Input events dropped because the queue was full.", "", stats.Dropped)
		writeMetric(buf, "termuxwc_input_discarded_total", "counter",
			"Input events discarded for departed viewers or shutdown.", "", stats.Discarded)
		writeMetric(buf, "termuxwc_input_queued", "gauge",
			"Input events waiting for delivery.", "", stats.Queued)
		writeMetric(buf, "termuxwc_input_queue_capacity", "gauge",
			"Input queue capacity.", "", stats.Capacity)
	}
	if e.delivery != nil {
		stats := e.delivery()
		writeMetric(buf, "termuxwc_input_injected_total", "counter",
			"Input events delivered to the compositor.", "", stats.Injected)
		writeMetric(buf, "termuxwc_input_failed_total", "counter",
			"Input injections that failed.", "", stats.Failed)
		writeMetric(buf, "termuxwc_input_unavailable_total", "counter",
			"Input events discarded because injection was unavailable.", "", stats.Unavailable)
		writeMetric(buf, "termuxwc_input_released_total", "counter",
			"Synthetic releases sent for departed viewers.", "", stats.Released)
	}
}

type number interface {
	~int | ~int64 | ~uint64
}

func writeMetric[T number](buf *bytes.Buffer, name, kind, help, labels string, value T) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(buf, "%s%s %d\n", name, labels, value)
}
