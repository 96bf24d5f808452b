// Package metrics exposes the session orchestrator's Prometheus
// collectors. Registered on the default registry; the dev harness serves
// them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicelink_sessions_active",
		Help: "Currently connected sessions",
	})

	ConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_connects_total",
		Help: "Connection attempts by outcome",
	}, []string{"outcome"})

	ControlMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_control_messages_total",
		Help: "Inbound control messages by type",
	}, []string{"type"})

	MalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_malformed_messages_total",
		Help: "Inbound control messages dropped at decode",
	})

	TranscriptUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicelink_transcript_upserts_total",
		Help: "Reconciled transcript updates by role",
	}, []string{"role"})

	TracksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_tracks_started_total",
		Help: "Remote audio tracks bound to playback",
	})

	PlaybackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_playback_failures_total",
		Help: "Remote track playback-start failures",
	})
)
