package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusDisputed  = "disputed"
)

// Order is a purchase between a buyer and a seller. Written by the order subsystem, read here for metrics.
type Order struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BuyerID       uint            `gorm:"index;not null" json:"buyer_id"`
	SellerID      uint            `gorm:"index;not null" json:"seller_id"`
	Category      string          `gorm:"size:32;index" json:"category"` // currency, item, service, account
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status        string          `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	PaymentStatus string          `gorm:"size:16;index" json:"payment_status"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Message is a single chat message between two users.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	SenderID       uint      `gorm:"index;not null" json:"sender_id"`
	RecipientID    uint      `gorm:"index;not null" json:"recipient_id"`
	Body           string    `gorm:"type:text" json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Review is a buyer's rating of a seller for an order.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"uniqueIndex;not null" json:"order_id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	SellerID  uint      `gorm:"index;not null" json:"seller_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Login records a successful sign-in.
type Login struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	LoggedInAt time.Time `gorm:"index;not null" json:"logged_in_at"`
	IP         string    `gorm:"size:45" json:"ip"`
}
