package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Bins written by the browser client hold plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

// Wallets maps an asset code ("USDC", "BTC", ...) to its balance
type Wallets map[string]decimal.Decimal

// Balance returns the balance of asset, zero if the wallet has none.
func (w Wallets) Balance(asset string) decimal.Decimal {
	if w == nil {
		return decimal.Zero
	}
	return w[asset]
}

// Clone copies the map so callers can change balances without touching the source.
func (w Wallets) Clone() Wallets {
	out := make(Wallets, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// User is a dashboard account as stored in the users bin
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status,omitempty"`
	Tier         int        `json:"tier,omitempty"`
	Wallets      Wallets    `json:"wallets"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// EffectiveStatus treats a missing status as active, like the admin table does.
func (u User) EffectiveStatus() UserStatus {
	if u.Status == "" {
		return StatusActive
	}
	return u.Status
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Public strips the password hash before a user leaves the service.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type TransactionType string

const (
	TxDeposit     TransactionType = "deposit"
	TxWithdrawal  TransactionType = "withdrawal"
	TxTransferOut TransactionType = "transfer_out"
	TxTransferIn  TransactionType = "transfer_in"
)

type TransactionStatus string

const (
	TxCompleted TransactionStatus = "completed"
	TxPending   TransactionStatus = "pending"
)

// Transaction records a simulated money movement
type Transaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Type         TransactionType   `json:"type"`
	Currency     string            `json:"currency"`
	Amount       decimal.Decimal   `json:"amount"`
	Fee          decimal.Decimal   `json:"fee"`
	Net          decimal.Decimal   `json:"net"`
	Method       string            `json:"method,omitempty"`
	Counterparty string            `json:"counterparty,omitempty"`
	Address      string            `json:"address,omitempty"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
}

type NotificationType string

const (
	NotificationPublic   NotificationType = "public"
	NotificationSpecific NotificationType = "specific"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is an admin-authored platform message
type Notification struct {
	ID          string           `json:"id"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	Priority    Priority         `json:"priority"`
	TargetUsers []string         `json:"targetUsers,omitempty"`
	CreatedBy   string           `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	IsRead      bool             `json:"isRead"`
}

// VisibleTo reports whether a non-admin user may see the notification.
func (n Notification) VisibleTo(userID string) bool {
	if n.Type == NotificationPublic {
		return true
	}
	if n.Type != NotificationSpecific {
		return false
	}
	for _, id := range n.TargetUsers {
		if id == userID {
			return true
		}
	}
	return false
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// AgentApplication is a request to become a regional agent
type AgentApplication struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	UserEmail      string       `json:"userEmail"`
	FullName       string       `json:"fullName"`
	Gender         string       `json:"gender,omitempty"`
	Occupation     string       `json:"occupation"`
	ActiveHours    string       `json:"activeHours,omitempty"`
	Location       string       `json:"location,omitempty"`
	Country        string       `json:"country"`
	PhoneNumber    string       `json:"phoneNumber"`
	WhatsappNumber string       `json:"whatsappNumber,omitempty"`
	Email          string       `json:"email"`
	Experience     string       `json:"experience,omitempty"`
	Motivation     string       `json:"motivation,omitempty"`
	Status         ReviewStatus `json:"status"`
	SubmittedAt    time.Time    `json:"submittedAt"`
	ReviewedAt     *time.Time   `json:"reviewedAt,omitempty"`
}

// AccountDetail is a bank account used for off-platform settlement
type AccountDetail struct {
	ID            string       `json:"id"`
	AccountNumber string       `json:"accountNumber"`
	BankUserName  string       `json:"bankUserName"`
	BankName      string       `json:"bankName"`
	Status        ReviewStatus `json:"status"`
	CreatedBy     string       `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
	ApprovedAt    *time.Time   `json:"approvedAt,omitempty"`
}

type MessageType string

const (
	MessageSystem       MessageType = "system"
	MessageSecurity     MessageType = "security"
	MessageAnnouncement MessageType = "announcement"
	MessageUser         MessageType = "user"
)

// Message is an entry in a user's support inbox
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Sender    string      `json:"sender"`
	Subject   string      `json:"subject"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Read      bool        `json:"read"`
	Type      MessageType `json:"type"`
}
