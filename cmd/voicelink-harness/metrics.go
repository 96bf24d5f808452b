package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicelink_harness_rooms_open",
		Help: "Rooms with a live signaling connection",
	})

	agentTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_harness_agent_turns_total",
		Help: "Completed scripted agent turns",
	})

	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicelink_harness_uploads_total",
		Help: "Accepted book uploads",
	})
)
