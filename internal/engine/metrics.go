package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched counts pages fetched successfully.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlkit_pages_fetched_total",
		Help: "The total number of pages fetched successfully.",
	})
	// TotalFetchErrors counts fetches that ended in any failure.
	TotalFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlkit_fetch_errors_total",
		Help: "The total number of failed fetch attempts.",
	})
	// TotalRetryableErrors counts failures classified as retryable.
	TotalRetryableErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlkit_retryable_errors_total",
		Help: "The total number of failures eligible for a retry pass.",
	})
	// TotalRobotsDenied counts tasks skipped because robots.txt disallowed them.
	TotalRobotsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlkit_robots_denied_total",
		Help: "The total number of URLs skipped due to robots.txt rules.",
	})
	// TotalLinksDiscovered counts newly enqueued links extracted from pages.
	TotalLinksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlkit_links_discovered_total",
		Help: "The total number of new links enqueued from fetched pages.",
	})
)
