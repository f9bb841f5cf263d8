// Package metrics registers the Prometheus collectors of StorageCrypt
// processes. Collectors live in the default registry and are served by the
// daemon on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process names used as label values.
const (
	ProcessEncryption = "encryption"
	ProcessDecryption = "decryption"
	ProcessChangeSync = "changesync"
	ProcessTransfer   = "transfer"
)

// Item outcomes used as label values.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecrypt_process_items_total",
			Help: "Items handled by StorageCrypt processes by outcome",
		},
		[]string{"process", "result"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecrypt_process_bytes_total",
			Help: "Bytes streamed by StorageCrypt processes",
		},
		[]string{"process"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storagecrypt_process_run_duration_seconds",
			Help:    "Duration of StorageCrypt process runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"process"},
	)

	accountSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecrypt_account_syncs_total",
			Help: "Change synchronizations per account by outcome",
		},
		[]string{"backend", "account", "result"},
	)

	accountLastSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storagecrypt_account_last_sync_timestamp_seconds",
			Help: "Unix time of the last finished change synchronization",
		},
		[]string{"backend", "account"},
	)

	accountQuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storagecrypt_account_quota_used_bytes",
			Help: "Last known storage usage per account",
		},
		[]string{"backend", "account"},
	)
)

func Item(process, result string) {
	itemsTotal.WithLabelValues(process, result).Inc()
}

func Bytes(process string, n int64) {
	if n > 0 {
		bytesTotal.WithLabelValues(process).Add(float64(n))
	}
}

// ObserveRun records the duration of a run started at start.
func ObserveRun(process string, start time.Time) {
	runDuration.WithLabelValues(process).Observe(time.Since(start).Seconds())
}

func AccountSynced(backend, account, result string, at time.Time) {
	accountSyncTotal.WithLabelValues(backend, account, result).Inc()
	accountLastSync.WithLabelValues(backend, account).Set(float64(at.Unix()))
}

func AccountQuota(backend, account string, used int64) {
	accountQuotaUsed.WithLabelValues(backend, account).Set(float64(used))
}
