// Package metrics holds the Prometheus collectors for the reminder engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medtrack_scheduler_ticks_total",
		Help: "Polling ticks evaluated by the trigger scheduler",
	})

	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medtrack_reminders_fired_total",
		Help: "Reminders fired across alert channels",
	})

	MalformedReminders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medtrack_malformed_reminders_total",
		Help: "Reminders skipped during a tick because their time could not be parsed",
	})

	// Labels: "notification", "speech", "audio"
	AlertChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtrack_alert_channel_failures_total",
		Help: "Alert channel failures by channel",
	}, []string{"channel"})

	// Labels: "normal", "low_stock", "out_of_stock"
	DosesTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtrack_doses_taken_total",
		Help: "Doses marked as taken by resulting stock classification",
	}, []string{"outcome"})

	// Labels: op = "register" | "taken"; result = "success" | "failure"
	TimerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtrack_timer_requests_total",
		Help: "Requests to the external reminder timer service",
	}, []string{"op", "result"})

	TimerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medtrack_timer_request_duration_seconds",
		Help:    "Reminder timer service request duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"op"})

	// Labels: "success", "failure"
	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtrack_snapshot_writes_total",
		Help: "Reminder snapshot writes by result",
	}, []string{"result"})
)
