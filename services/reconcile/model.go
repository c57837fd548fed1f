package reconcile

import "time"

// SyncReport is the persisted summary of one reconciliation pass.
type SyncReport struct {
	ID            string    `json:"id" gorm:"column:id;primaryKey"`
	Checked       int       `json:"checked" gorm:"column:checked"`
	Discrepancies int       `json:"discrepancies" gorm:"column:discrepancies"`
	Failures      int       `json:"failures" gorm:"column:failures"`
	Forced        bool      `json:"forced" gorm:"column:forced"`
	StartedAt     time.Time `json:"started_at" gorm:"column:started_at"`
	FinishedAt    time.Time `json:"finished_at" gorm:"column:finished_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
}

func (SyncReport) TableName() string {
	return "sync_reports"
}

// SyncItem describes what the reconciler did to one ticket.
type SyncItem struct {
	TicketID   string `json:"ticket_id"`
	TokenID    string `json:"token_id,omitempty"`
	LedgerCode int    `json:"ledger_code"`
	Updated    bool   `json:"updated"`
	Change     string `json:"change,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SyncResult is the API-facing outcome of a reconciliation pass.
type SyncResult struct {
	ReportID      string     `json:"report_id"`
	Checked       int        `json:"checked"`
	Discrepancies int        `json:"discrepancies"`
	Failures      int        `json:"failures"`
	Forced        bool       `json:"forced"`
	Items         []SyncItem `json:"items,omitempty"`
}

// Inconsistency is one verifier finding for one ticket.
type Inconsistency struct {
	TicketID       string `json:"ticket_id"`
	TokenID        string `json:"token_id"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`
}

// VerifyFailure records a ticket the verifier could not check.
type VerifyFailure struct {
	TicketID string `json:"ticket_id"`
	Error    string `json:"error"`
}

// ContractInfo is optional chain metadata attached to a verification report.
type ContractInfo struct {
	Owner       string `json:"owner"`
	BlockNumber uint64 `json:"block_number"`
	GasPriceWei string `json:"gas_price_wei"`
}

// VerifyReport is the read-only audit outcome. Verification never mutates
// the database.
type VerifyReport struct {
	Checked             int             `json:"checked"`
	Valid               int             `json:"valid"`
	Revoked             int             `json:"revoked"`
	Unregistered        int             `json:"unregistered"`
	Inconsistent        int             `json:"inconsistent"`
	FailureCount        int             `json:"failure_count"`
	ConsistentPercent   float64         `json:"consistent_percent"`
	InconsistentPercent float64         `json:"inconsistent_percent"`
	Inconsistencies     []Inconsistency `json:"inconsistencies,omitempty"`
	Failures            []VerifyFailure `json:"failures,omitempty"`
	Contract            *ContractInfo   `json:"contract,omitempty"`
}
