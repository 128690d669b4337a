package rediskey

import "fmt"

// Payout keys (global convention across services)
const (
	PayoutCyclePrefix = "payout:cycle"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildPayoutCycleKey returns "payout:cycle:{date}"
func BuildPayoutCycleKey(date string) string {
	return NamespaceKey(PayoutCyclePrefix, date)
}
