package models

// MetricsSample is one recorded outcome of a QueryExecutor.execute call.
type MetricsSample struct {
	QueryName     string `json:"query_name"`
	CacheName     string `json:"cache_name"`
	CacheKey      string `json:"cache_key"`
	Hit           bool   `json:"hit"`
	LatencyMillis int64  `json:"latency_ms"`
	AtMillis      int64  `json:"at_millis"`
}

// QuerySnapshot is the per-query view inside a collector snapshot.
type QuerySnapshot struct {
	QueryName             string `json:"query_name"`
	Hits                  uint64 `json:"hits"`
	Misses                uint64 `json:"misses"`
	FirstAccessMillis     int64  `json:"first_access_millis"`
	LastAccessMillis      int64  `json:"last_access_millis"`
	CacheLatencySumMillis int64  `json:"cache_latency_sum_millis"`
	DBLatencySumMillis    int64  `json:"db_latency_sum_millis"`
}

// Snapshot is the aggregate view returned by MetricsCollector.Snapshot().
type Snapshot struct {
	TotalRequests          uint64                   `json:"total_requests"`
	TotalHits              uint64                   `json:"total_hits"`
	TotalMisses            uint64                   `json:"total_misses"`
	HitRate                float64                  `json:"hit_rate"`
	AvgCacheResponseTimeMs float64                  `json:"avg_cache_response_time_ms"`
	AvgDBResponseTimeMs    float64                  `json:"avg_database_response_time_ms"`
	PerQuery               map[string]QuerySnapshot `json:"per_query"`

	// Percentiles over recent latency samples, additive to the averages above.
	P50Millis float64 `json:"p50_millis"`
	P90Millis float64 `json:"p90_millis"`
	P95Millis float64 `json:"p95_millis"`
	P99Millis float64 `json:"p99_millis"`
}
