package payout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ReserveSetting names the settings row holding the dollar reserve of KIN
// already bought on the exchange.
const ReserveSetting = "currentReserve"

var (
	ErrCycleInProgress = errors.New("payout cycle already in progress")
	ErrInvalidDate     = errors.New("invalid payout date")
	ErrInvalidPrice    = errors.New("exchange returned a non-positive price")
	ErrRecordNotSaved  = errors.New("transfer sent but payout record not saved")
)

// PayoutRecord marks an app as paid for a date.
type PayoutRecord struct {
	UserID    string          `gorm:"column:user_id;primaryKey"`
	Date      string          `gorm:"column:date;primaryKey;type:varchar(8)"`
	TxID      string          `gorm:"column:tx_id"`
	Kin       decimal.Decimal `gorm:"column:kin;type:numeric(30,0)"`
	Revenue   decimal.Decimal `gorm:"column:revenue;type:numeric(20,8)"`
	KinPrice  decimal.Decimal `gorm:"column:kin_price;type:numeric(30,16)"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

func (PayoutRecord) TableName() string { return "payouts" }

// Setting is a named decimal value.
type Setting struct {
	Name      string          `gorm:"column:name;primaryKey"`
	Value     decimal.Decimal `gorm:"column:value;type:numeric(20,8)"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (Setting) TableName() string { return "settings" }

type CycleStatus string

const (
	CycleRunning CycleStatus = "running"
	CycleSuccess CycleStatus = "success"
	CycleFailed  CycleStatus = "failed"
)

// Cycle is the execution record of one payout run.
type Cycle struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Date        string          `gorm:"column:date;index;type:varchar(8)"`
	Status      CycleStatus     `gorm:"column:status;type:varchar(16)"`
	Production  bool            `gorm:"column:production"`
	Apps        int             `gorm:"column:apps"`
	Paid        int             `gorm:"column:paid"`
	Skipped     int             `gorm:"column:skipped"`
	Failed      int             `gorm:"column:failed"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(20,8)"`
	KinPrice    decimal.Decimal `gorm:"column:kin_price;type:numeric(30,16)"`
	Error       string          `gorm:"column:error;type:text"`
	StartedAt   time.Time       `gorm:"column:started_at"`
	CompletedAt *time.Time      `gorm:"column:completed_at"`
}

func (Cycle) TableName() string { return "payout_cycles" }

type EntryStatus string

const (
	EntryPaid        EntryStatus = "paid"
	EntryDryRun      EntryStatus = "dry_run"
	EntryAlreadyPaid EntryStatus = "already_paid"
	EntryNoWallet    EntryStatus = "no_wallet"
	EntryNothingDue  EntryStatus = "nothing_due"
	EntryFailed      EntryStatus = "failed"
)

// Entry is the planned or executed payout of one app.
type Entry struct {
	UserID  string          `json:"user_id"`
	AppID   string          `json:"app_id"`
	Wallet  string          `json:"wallet"`
	Revenue decimal.Decimal `json:"revenue"`
	Kin     decimal.Decimal `json:"kin"`
	TxID    string          `json:"tx_id,omitempty"`
	Status  EntryStatus     `json:"status"`
	Error   string          `json:"error,omitempty"`
}

// Summary reports what a payout run did.
type Summary struct {
	CycleID    string          `json:"cycle_id"`
	Date       string          `json:"date"`
	Production bool            `json:"production"`
	Total      decimal.Decimal `json:"total"`
	KinPrice   decimal.Decimal `json:"kin_price"`
	Reserve    decimal.Decimal `json:"reserve"`
	Entries    []Entry         `json:"entries"`
}

func (s *Summary) count(status ...EntryStatus) int {
	n := 0
	for _, e := range s.Entries {
		for _, st := range status {
			if e.Status == st {
				n++
			}
		}
	}
	return n
}

func (s *Summary) Paid() int { return s.count(EntryPaid, EntryDryRun) }

func (s *Summary) Skipped() int {
	return s.count(EntryAlreadyPaid, EntryNoWallet, EntryNothingDue)
}

func (s *Summary) Failed() int { return s.count(EntryFailed) }
