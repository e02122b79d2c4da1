// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Catalog Sources - these keys manage the registration and selection of search backends.
const (
	// SourcesAPIs lists enabled backends as "key|display name|base URL" entries.
	SourcesAPIs = "sources.apis"

	// SourcesConcurrency bounds the number of simultaneous backend requests during fan-out.
	SourcesConcurrency = "sources.concurrency"

	// SourcesRequestsPerSecond is the per-source request budget applied during aggregation.
	SourcesRequestsPerSecond = "sources.requests_per_second"
)

// Search Behavior - these keys govern aggregation and the result cache.
const (
	SearchCacheTTLMinutes = "search.cache_ttl_minutes"
	SearchCacheCapacity   = "search.cache_capacity"
	SearchSuggestions     = "search.show_query_suggestions"
	SearchLimit           = "search.limit"
)

// Stream Probing - these keys tune candidate validation before playback.
const (
	ProbeTimeoutSeconds  = "probe.timeout_seconds"
	ProbeToleranceMillis = "probe.tolerance_ms"
	ProbeCacheTTLMinutes = "probe.cache_ttl_minutes"
)

// Media Playback - these keys maintain state and configuration for the external video player.
const (
	Player                     = "player.default"
	PlayerCompletionPercentage = "player.completion_percentage"
	PlayerAutoAdvance          = "player.auto_advance"
)

// History Tracking - these keys configure the persistence of playback progress.
const (
	HistorySaveOnPlay = "history.save_on_play"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these settings govern non-interactive application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
	IconsVariant    = "icons.variant"
)
