package task

const (
	ProcessRevocationQueueTask = "revocation:queue:process"
	SyncLedgerStateTask        = "ledger:state:sync"
)

type ProcessQueuePayload struct {
	BatchSize int `json:"batch_size"`
}

type SyncStatePayload struct {
	Limit int  `json:"limit"`
	Force bool `json:"force"`
}
