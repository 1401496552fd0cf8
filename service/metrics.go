package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "campaign_webhook_events_total",
	Help: "Webhook deliveries by processor and reconciliation outcome",
}, []string{"processor", "outcome"})

var legacyMigrations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "campaign_legacy_rows_migrated_total",
	Help: "Legacy single-currency ledger rows rewritten by the reindexer",
})
