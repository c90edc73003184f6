package domain

import "time"

type User struct {
	ID        int64 // Telegram user id
	Username  *string
	FirstName *string
	LastName  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID            int64
	UserID        int64
	VirtualNumber string
	RequestID     string
	IsActive      bool
	CreatedAt     time.Time
}

type VerifiedNumber struct {
	ID          int64
	UserID      int64
	PhoneNumber string
	VerifiedAt  time.Time
}

type UsageRecord struct {
	ID         int64
	UserID     int64
	ActionType ActionType
	Cost       float64
	CreatedAt  time.Time
}

type SmsMessage struct {
	ID         int64
	UserID     int64
	Recipient  string
	Body       string
	ProviderID string
	Status     string
	SentAt     time.Time
}

type ActionType string

const (
	ActionStart            ActionType = "start_command"
	ActionGetVirtualNumber ActionType = "get_virtual_number"
	ActionSendSMS          ActionType = "send_sms"
	ActionCheckMessages    ActionType = "check_messages"
	ActionVerifyNumber     ActionType = "verify_number"
)

const MessageStatusSent = "sent"
