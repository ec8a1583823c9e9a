package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type instruments struct {
	reports      prometheus.Counter
	filtered     prometheus.Histogram
	ingested     prometheus.Counter
	skipped      prometheus.Counter
	schemaErrors prometheus.Counter
	exportErrors prometheus.Counter
}

func newInstruments(reg prometheus.Registerer) *instruments {
	f := promauto.With(reg)
	return &instruments{
		reports: f.NewCounter(prometheus.CounterOpts{
			Name: "kpi_reports_total",
			Help: "KPI reports computed.",
		}),
		filtered: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kpi_contacts_filtered",
			Help:    "Contacts left after filtering, per report.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		}),
		ingested: f.NewCounter(prometheus.CounterOpts{
			Name: "kpi_datasets_ingested_total",
			Help: "CSV exports ingested.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "kpi_ingest_rows_skipped_total",
			Help: "Malformed CSV rows skipped at ingestion.",
		}),
		schemaErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kpi_ingest_schema_errors_total",
			Help: "Exports rejected for missing required columns.",
		}),
		exportErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kpi_export_errors_total",
			Help: "Failed report pushes to the sink.",
		}),
	}
}
