package revenue

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DateLayout is the YYYYMMDD form used for report and payout dates.
const DateLayout = "20060102"

// DailyRevenueReport is one network's revenue for one app on one day.
type DailyRevenueReport struct {
	UserID          string          `gorm:"column:user_id;primaryKey"`
	DateMediationID string          `gorm:"column:date_mediation_id;primaryKey"`
	Revenue         decimal.Decimal `gorm:"column:revenue;type:numeric(20,8);not null;default:0"`
	Impressions     int64           `gorm:"column:impressions"`
	Clicks          int64           `gorm:"column:clicks"`
	Metrics         datatypes.JSON  `gorm:"column:metrics"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (DailyRevenueReport) TableName() string { return "reports" }

// ReportKey returns "<YYYYMMDD>#<NETWORK>#<appId>".
func ReportKey(date time.Time, network, appID string) string {
	return strings.Join([]string{date.Format(DateLayout), strings.ToUpper(network), appID}, "#")
}

// AppRevenue is an app's fee-adjusted revenue for one day.
type AppRevenue struct {
	UserID  string
	AppID   string
	Wallet  string
	Revenue decimal.Decimal
}
