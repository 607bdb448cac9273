package config

const (
	DefaultTimeZone = "Africa/Lusaka"

	// Reconciliation batching
	DefaultChunkSize = 500

	// Scheduled loan book ingest: nightly at 02:30, after the upstream
	// extract lands in the drop directory.
	DefaultLoanBookSchedule = "30 2 * * *"
	DefaultDropDir          = "./loanbook-drop"

	// Feed dates outside this window are treated as corrupted cells.
	MinFeedYear = 1900
	MaxFeedYear = 2100
)
