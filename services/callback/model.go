package callback

import (
	"net/url"
	"time"
)

// RewardEvent is the idempotency ledger entry of a verified reward callback.
// Rows are only ever inserted; expired rows are purged by a maintenance task.
type RewardEvent struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	EventID   string    `gorm:"column:event_id;primaryKey"`
	Rewards   string    `gorm:"column:rewards"`
	Timestamp string    `gorm:"column:timestamp"`
	AppUserID string    `gorm:"column:app_user_id"`
	IPAddress string    `gorm:"column:ip_address"`
	Expires   int64     `gorm:"column:expires;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (RewardEvent) TableName() string { return "app_events" }

// EventKey returns the ledger key of an event for one application user.
func EventKey(appUserID, eventID string) string {
	return appUserID + "#" + eventID
}

// Request is an inbound reward callback as received over HTTP.
type Request struct {
	Network      string
	Query        url.Values
	ForwardedFor string
	RemoteAddr   string
}

// Response is what the ad network sees. It never depends on the outcome.
type Response struct {
	StatusCode int
	Body       string
}

// Param is an ordered query parameter.
type Param struct {
	Key   string
	Value string
}

// Callback holds the normalised fields of a request for one network.
type Callback struct {
	Network     string
	AppKey      string
	EventID     string
	Rewards     string
	Timestamp   string
	UserID      string
	Signature   string
	SourceIP    string
	Passthrough []Param
}
