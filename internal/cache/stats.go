package cache

// Stats is the snapshot surfaced to the host protocol's status messages
// (spec §4.3 "Stats").
type Stats struct {
	TotalSizeMB         float64
	MaxSizeMB           float64
	UsagePercent        float64
	CachedCount         int
	TotalCount          int
	CachePercent        float64
	ConsecutiveFailures int
	IsOffline           bool
}

func computeStats(totalBytes, maxBytes int64, cachedCount, totalCount, consecutiveFailures int, offline bool) Stats {
	s := Stats{
		TotalSizeMB:         float64(totalBytes) / (1024 * 1024),
		MaxSizeMB:           float64(maxBytes) / (1024 * 1024),
		CachedCount:         cachedCount,
		TotalCount:          totalCount,
		ConsecutiveFailures: consecutiveFailures,
		IsOffline:           offline,
	}
	if maxBytes > 0 {
		s.UsagePercent = 100 * float64(totalBytes) / float64(maxBytes)
	}
	if totalCount > 0 {
		s.CachePercent = 100 * float64(cachedCount) / float64(totalCount)
	}
	return s
}
