package domain

// ClientStats is a point-in-time snapshot of the client's own counters,
// shown by the stats command. Values are cumulative since process start.
type ClientStats struct {
	RequestsTotal      int64   `json:"requests_total"`
	RequestErrors      int64   `json:"request_errors"`
	ErrorRate          float64 `json:"error_rate"`
	PaymentsSucceeded  int64   `json:"payments_succeeded"`
	PaymentsFailed     int64   `json:"payments_failed"`
	ReceiptsDelivered  int64   `json:"receipts_delivered"`
	HealthCacheHitRate float64 `json:"health_cache_hit_rate"`
}
