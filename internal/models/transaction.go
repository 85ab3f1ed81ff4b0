package models

import (
	"time"
)

// TxStatus is the lifecycle state of a journaled transaction
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusSuccess   TxStatus = "success"
	TxStatusFailed    TxStatus = "failed"
	TxStatusAmbiguous TxStatus = "ambiguous"
)

// Transaction is a journal record for one submitted transaction
type Transaction struct {
	ID            string     `json:"id" db:"id"`
	Action        string     `json:"action" db:"action"`
	Account       string     `json:"account" db:"account"`
	TxHash        string     `json:"tx_hash" db:"tx_hash"`
	Status        TxStatus   `json:"status" db:"status"`
	ExpectedEvent string     `json:"expected_event,omitempty" db:"expected_event"`
	BlockNumber   *uint64    `json:"block_number,omitempty" db:"block_number"`
	Error         *string    `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

// TransactionFilter for querying the journal
type TransactionFilter struct {
	Account *string   `json:"account,omitempty"`
	Action  *string   `json:"action,omitempty"`
	Status  *TxStatus `json:"status,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}
