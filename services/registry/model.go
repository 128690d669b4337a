package registry

import (
	"strings"
	"time"
)

const (
	// CallbackPrefix marks rows holding a network callback configuration.
	CallbackPrefix = "callback"
	// AppPrefix marks rows holding an application's payout wallet.
	AppPrefix = "username"
)

// App is a row of the apps table. One owner has several rows told apart by
// DataIdx: "callback#<NETWORK>#<clientId>" for callback configuration and
// "username#..." for the payout wallet.
type App struct {
	UserID          string    `gorm:"column:user_id;primaryKey"`
	DataIdx         string    `gorm:"column:data_idx;primaryKey;index:idx_apps_data_idx"`
	AppID           string    `gorm:"column:app_id"`
	Wallet          string    `gorm:"column:wallet"`
	CallbackURL     string    `gorm:"column:callback_url"`
	NetworkSecret   string    `gorm:"column:network_secret"`
	SignatureSecret string    `gorm:"column:signature_secret"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (App) TableName() string { return "apps" }

// ClientConfig is the callback configuration of one client on one network.
type ClientConfig struct {
	Network         string
	ClientID        string
	UserID          string
	CallbackURL     string
	NetworkSecret   string
	SignatureSecret string
}

// CallbackDataIdx returns "callback#<NETWORK>#<clientId>".
func CallbackDataIdx(network, clientID string) string {
	return strings.Join([]string{CallbackPrefix, strings.ToUpper(network), clientID}, "#")
}

func toClientConfig(network, clientID string, app *App) *ClientConfig {
	return &ClientConfig{
		Network:         strings.ToUpper(network),
		ClientID:        clientID,
		UserID:          app.UserID,
		CallbackURL:     app.CallbackURL,
		NetworkSecret:   app.NetworkSecret,
		SignatureSecret: app.SignatureSecret,
	}
}
