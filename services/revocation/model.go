package revocation

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerStatus tracks how far the on-chain side of a revocation has gone.
// Tickets without a ledger linkage are recorded as not_applicable and never
// enter the queue.
type LedgerStatus string

const (
	LedgerNotApplicable LedgerStatus = "not_applicable"
	LedgerPending       LedgerStatus = "pending"
	LedgerCompleted     LedgerStatus = "completed"
	LedgerFailed        LedgerStatus = "failed"
)

// Log is the audit record of one revocation decision. The local row is
// authoritative, the ledger columns only describe propagation.
type Log struct {
	ID           string         `json:"id" gorm:"column:id;primaryKey"`
	TicketID     string         `json:"ticket_id" gorm:"column:ticket_id;index"`
	Actor        string         `json:"actor" gorm:"column:actor"`
	Reason       string         `json:"reason" gorm:"column:reason"`
	LedgerStatus LedgerStatus   `json:"ledger_status" gorm:"column:ledger_status;index"`
	LedgerTxHash *string        `json:"ledger_tx_hash,omitempty" gorm:"column:ledger_tx_hash"`
	LedgerError  *string        `json:"ledger_error,omitempty" gorm:"column:ledger_error"`
	Metadata     datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt    time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Log) TableName() string {
	return "revocation_log"
}

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

const maxRetries = 3

// QueueItem is one durable unit of on-chain revocation work. Items move
// pending -> processing -> completed or failed; a transient error returns the
// item to pending until retry_count reaches the ceiling.
type QueueItem struct {
	ID           string      `json:"id" gorm:"column:id;primaryKey"`
	TicketID     string      `json:"ticket_id" gorm:"column:ticket_id;index"`
	LogID        string      `json:"log_id" gorm:"column:log_id;index"`
	Status       QueueStatus `json:"status" gorm:"column:status;index"`
	RetryCount   int         `json:"retry_count" gorm:"column:retry_count"`
	ErrorMessage *string     `json:"error_message,omitempty" gorm:"column:error_message"`
	CreatedAt    time.Time   `json:"created_at" gorm:"column:created_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (QueueItem) TableName() string {
	return "blockchain_revocation_queue"
}

// RevokeSummary reports what a single revocation request touched, including
// any group children that were cascaded. GroupSize counts the tickets revoked
// in this request, parent included; it is 1 when no cascade happened.
type RevokeSummary struct {
	TicketsRevoked []string `json:"tickets_revoked"`
	GroupSize      int      `json:"group_size"`
	AuditEntries   int      `json:"audit_entries"`
	QueueEntries   int      `json:"queue_entries"`
	Warnings       []string `json:"warnings,omitempty"`
}

// BatchSummary reports a purchase-level batch revocation.
type BatchSummary struct {
	PurchasesProcessed int      `json:"purchases_processed"`
	TicketsRevoked     []string `json:"tickets_revoked"`
	TicketsSkipped     []string `json:"tickets_skipped,omitempty"`
	AuditEntries       int      `json:"audit_entries"`
	QueueEntries       int      `json:"queue_entries"`
	Warnings           []string `json:"warnings,omitempty"`
}
