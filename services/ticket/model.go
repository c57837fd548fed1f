package ticket

import (
	"fmt"
	"strconv"
	"time"
)

type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
)

type MintStatus string

const (
	MintNone    MintStatus = "none"
	MintPending MintStatus = "pending"
	MintMinted  MintStatus = "minted"
	MintFailed  MintStatus = "failed"
)

// Ticket is the platform's unit of admission. A ticket may additionally be
// linked to an on-chain token, in which case contract_address and token_id
// are both set and ledger_registered reflects the last observed chain state.
type Ticket struct {
	ID               string     `json:"id" gorm:"column:id;primaryKey"`
	EventID          string     `json:"event_id" gorm:"column:event_id;index"`
	OwnerID          string     `json:"owner_id" gorm:"column:owner_id;index"`
	PurchaseID       string     `json:"purchase_id" gorm:"column:purchase_id;index"`
	GroupParentID    *string    `json:"group_parent_id,omitempty" gorm:"column:group_parent_id;index"`
	Status           Status     `json:"status" gorm:"column:status;index"`
	ContractAddress  *string    `json:"contract_address,omitempty" gorm:"column:contract_address"`
	TokenID          *string    `json:"token_id,omitempty" gorm:"column:token_id"`
	LedgerRegistered bool       `json:"ledger_registered" gorm:"column:ledger_registered"`
	MintStatus       MintStatus `json:"mint_status" gorm:"column:mint_status"`
	Flagged          bool       `json:"flagged" gorm:"column:flagged"`
	SyncStatusCode   *int       `json:"sync_status_code,omitempty" gorm:"column:sync_status_code"`
	LastSyncAt       *time.Time `json:"last_sync_timestamp,omitempty" gorm:"column:last_sync_timestamp"`
	CreatedAt        time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// LedgerLinked reports whether the ticket has a complete on-chain identity.
// Registration alone is not enough, both contract and token must be present.
func (t *Ticket) LedgerLinked() bool {
	return t.ContractAddress != nil && *t.ContractAddress != "" &&
		t.TokenID != nil && *t.TokenID != ""
}

// LedgerTokenID parses the stored token id once and validates it, so callers
// talk to the chain with a typed value instead of re-parsing a string column.
func (t *Ticket) LedgerTokenID() (uint64, error) {
	if !t.LedgerLinked() {
		return 0, fmt.Errorf("ticket %s has no ledger linkage", t.ID)
	}
	id, err := strconv.ParseUint(*t.TokenID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ticket %s has malformed token_id %q: %w", t.ID, *t.TokenID, err)
	}
	return id, nil
}

type User struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Email     string    `json:"email" gorm:"column:email;uniqueIndex"`
	Name      string    `json:"name" gorm:"column:name"`
	Role      string    `json:"role" gorm:"column:role"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Event struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Name      string    `json:"name" gorm:"column:name"`
	Venue     string    `json:"venue" gorm:"column:venue"`
	StartsAt  time.Time `json:"starts_at" gorm:"column:starts_at"`
	EndsAt    time.Time `json:"ends_at" gorm:"column:ends_at"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Event) TableName() string {
	return "events"
}

type Payment struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	UserID    string    `json:"user_id" gorm:"column:user_id;index"`
	Amount    int64     `json:"amount" gorm:"column:amount"`
	Currency  string    `json:"currency" gorm:"column:currency"`
	Status    string    `json:"status" gorm:"column:status"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// PurchaseHistory records one checkout. Tickets reference it through
// purchase_id, which is what batch revocation and the bot scan key on.
type PurchaseHistory struct {
	ID          string    `json:"id" gorm:"column:id;primaryKey"`
	UserID      string    `json:"user_id" gorm:"column:user_id;index"`
	EventID     string    `json:"event_id" gorm:"column:event_id;index"`
	PaymentID   string    `json:"payment_id" gorm:"column:payment_id"`
	TicketCount int       `json:"ticket_count" gorm:"column:ticket_count"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
}

func (PurchaseHistory) TableName() string {
	return "purchase_history"
}
