package taskname

const (
	// Payout tasks
	PayoutCycleRun = "payout:cycle:run"

	// Callback tasks
	CallbackEventsPurge = "callback:events:purge"
)
