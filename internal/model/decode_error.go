package model

// DecodeError records an event that could not be decoded or normalized.
type DecodeError struct {
	JobID       string `json:"job_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Type        uint8  `json:"type"`
	Address     string `json:"address"`
	Timestamp   uint64 `json:"timestamp"`
	Error       string `json:"error"`
}
