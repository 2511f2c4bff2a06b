package model

import (
	"time"

	"gorm.io/datatypes"
)

// Order status values. Automation only ever moves an order forward along
// confirmed -> processing -> shipped -> delivered; cancelled and refunded
// are owned by the admin flows and never written here.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusPaymentFailed  Status = "payment_failed"
	StatusRefunded       Status = "refunded"
)

// Payment sub-record status values.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Time groups classify when an order was placed (Istanbul-local hour),
// not when it is delivered.
type TimeGroup string

const (
	TimeGroupNoon      TimeGroup = "noon"
	TimeGroupEvening   TimeGroup = "evening"
	TimeGroupOvernight TimeGroup = "overnight"
)

// statusRank orders the automation-owned statuses. Statuses outside the
// automated track rank -1 so comparisons against them always fail.
var statusRank = map[Status]int{
	StatusConfirmed:  0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

func StatusRank(s Status) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

func ValidTimeGroup(g TimeGroup) bool {
	switch g {
	case TimeGroupNoon, TimeGroupEvening, TimeGroupOvernight:
		return true
	}
	return false
}

// TimeGroupForHour maps an Istanbul-local hour of day to the time group:
// 11:00-16:59 noon, 17:00-21:59 evening, everything else overnight.
func TimeGroupForHour(hour int) TimeGroup {
	switch {
	case hour >= 11 && hour < 17:
		return TimeGroupNoon
	case hour >= 17 && hour < 22:
		return TimeGroupEvening
	default:
		return TimeGroupOvernight
	}
}

type Payment struct {
	Status          string     `gorm:"type:varchar(16);index" json:"status"`
	Token           string     `gorm:"type:varchar(128)" json:"token,omitempty"`
	TokenCreatedAt  *time.Time `json:"token_created_at,omitempty"`
	TransactionID   string     `gorm:"type:varchar(64)" json:"transaction_id,omitempty"`
	CardLast4       string     `gorm:"type:char(4)" json:"card_last4,omitempty"`
	CardType        string     `gorm:"type:varchar(32)" json:"card_type,omitempty"`
	CardAssociation string     `gorm:"type:varchar(32)" json:"card_association,omitempty"`
	Installment     int        `gorm:"type:int" json:"installment,omitempty"`
	PaidPrice       string     `gorm:"type:varchar(32)" json:"paid_price,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	ErrorCode       string     `gorm:"type:varchar(32)" json:"error_code,omitempty"`
	ErrorMessage    string     `gorm:"type:varchar(255)" json:"error_message,omitempty"`
}

type Delivery struct {
	// Date is stored as text because legacy rows carry mixed formats;
	// always go through timeutil.NormalizeDeliveryDate before comparing.
	Date           string `gorm:"type:varchar(64);index" json:"date"`
	TimeSlot       string `gorm:"type:varchar(32)" json:"time_slot,omitempty"`
	FullAddress    string `gorm:"type:text" json:"full_address,omitempty"`
	District       string `gorm:"type:varchar(64)" json:"district,omitempty"`
	RecipientName  string `gorm:"type:varchar(128)" json:"recipient_name,omitempty"`
	RecipientPhone string `gorm:"type:varchar(32)" json:"recipient_phone,omitempty"`
}

type Order struct {
	ID            string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrderNumber   string `gorm:"type:varchar(32);uniqueIndex" json:"order_number"`
	CustomerEmail string `gorm:"type:varchar(128)" json:"customer_email"`
	CustomerName  string `gorm:"type:varchar(128)" json:"customer_name"`

	Status    Status    `gorm:"type:varchar(32);index:idx_status_created_at,priority:1" json:"status"`
	TimeGroup TimeGroup `gorm:"type:varchar(16)" json:"order_time_group"`

	Payment  Payment  `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Delivery Delivery `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery"`

	Timeline Timeline       `gorm:"type:json" json:"timeline"`
	Items    datatypes.JSON `gorm:"type:json" json:"items,omitempty"`

	CreatedAt   time.Time  `gorm:"index:idx_status_created_at,priority:2" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// StatusChange is the per-order line of an automation run summary.
type StatusChange struct {
	OrderNumber string `json:"orderNumber"`
	OldStatus   Status `json:"oldStatus"`
	NewStatus   Status `json:"newStatus"`
}

// OrderStatusEvent is published to the message bus after an automated
// transition so downstream consumers observe automation activity.
type OrderStatusEvent struct {
	OrderNumber string `json:"order_number"`
	OldStatus   Status `json:"old_status"`
	NewStatus   Status `json:"new_status"`
	Automated   bool   `json:"automated"`
}
