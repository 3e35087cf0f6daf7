package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// EncryptedPlaceholder replaces content that could not be fetched or decrypted.
const EncryptedPlaceholder = "<encrypted message>"

// Details is the decoded payload of a job event. The set of implementations is closed:
// exactly one type per known EventType.
type Details interface {
	EventType() EventType
	details()
}

// CreatedDetails is the decoded Created payload.
type CreatedDetails struct {
	Title              string         `json:"title"`
	ContentHash        common.Hash    `json:"content_hash"`
	MultipleApplicants bool           `json:"multiple_applicants"`
	Tags               []string       `json:"tags"`
	Token              common.Address `json:"token"`
	Amount             *uint256.Int   `json:"amount"`
	MaxTime            uint32         `json:"max_time"`
	DeliveryMethod     string         `json:"delivery_method"`
	Arbitrator         common.Address `json:"arbitrator"`
	WhitelistWorkers   bool           `json:"whitelist_workers"`
}

// UpdatedDetails is the decoded Updated payload.
type UpdatedDetails struct {
	Title            string         `json:"title"`
	ContentHash      common.Hash    `json:"content_hash"`
	Tags             []string       `json:"tags"`
	Amount           *uint256.Int   `json:"amount"`
	MaxTime          uint32         `json:"max_time"`
	Arbitrator       common.Address `json:"arbitrator"`
	WhitelistWorkers bool           `json:"whitelist_workers"`
}

// TakenDetails is the decoded Taken payload. EscrowID is zero for legacy empty payloads.
type TakenDetails struct {
	EscrowID *uint256.Int `json:"escrow_id"`
}

type PaidDetails struct{}

// SignedDetails is the decoded Signed payload (fixed layout).
type SignedDetails struct {
	Revision      uint16      `json:"revision"`
	SignatureHash common.Hash `json:"signature_hash"`
}

type CompletedDetails struct{}

// DeliveredDetails is the decoded Delivered payload.
type DeliveredDetails struct {
	ResultHash common.Hash `json:"result_hash"`
}

type ClosedDetails struct{}

type ReopenedDetails struct{}

// RatedDetails is the decoded Rated payload (fixed layout).
type RatedDetails struct {
	Rating uint8  `json:"rating"`
	Review string `json:"review"`
}

type RefundedDetails struct{}

// DisputedDetails carries the encrypted dispute. Content is filled in after decryption.
type DisputedDetails struct {
	EncryptedSessionKey hexutil.Bytes `json:"encrypted_session_key"`
	EncryptedContent    hexutil.Bytes `json:"encrypted_content"`
	Content             string        `json:"content,omitempty"`
}

// ArbitratedDetails is the decoded Arbitrated payload (fixed layout). Reason is resolved
// from ReasonHash by the content resolver.
type ArbitratedDetails struct {
	CreatorShare  uint16         `json:"creator_share"`
	CreatorAmount *uint256.Int   `json:"creator_amount"`
	WorkerShare   uint16         `json:"worker_share"`
	WorkerAmount  *uint256.Int   `json:"worker_amount"`
	ReasonHash    common.Hash    `json:"reason_hash"`
	Worker        common.Address `json:"worker"`
	Reason        string         `json:"reason,omitempty"`
}

type ArbitrationRefusedDetails struct{}

type WhitelistedWorkerAddedDetails struct {
	Worker common.Address `json:"worker"`
}

type WhitelistedWorkerRemovedDetails struct {
	Worker common.Address `json:"worker"`
}

type CollateralWithdrawnDetails struct {
	Amount *uint256.Int `json:"amount"`
}

// MessageDetails is shared by owner and worker messages. Content is resolved from
// ContentHash by the content resolver.
type MessageDetails struct {
	Recipient   common.Address `json:"recipient"`
	ContentHash common.Hash    `json:"content_hash"`
	Content     string         `json:"content,omitempty"`
}

type WorkerMessageDetails struct {
	MessageDetails
}

type OwnerMessageDetails struct {
	MessageDetails
}

func (CreatedDetails) EventType() EventType                  { return EventCreated }
func (UpdatedDetails) EventType() EventType                  { return EventUpdated }
func (TakenDetails) EventType() EventType                    { return EventTaken }
func (PaidDetails) EventType() EventType                     { return EventPaid }
func (SignedDetails) EventType() EventType                   { return EventSigned }
func (CompletedDetails) EventType() EventType                { return EventCompleted }
func (DeliveredDetails) EventType() EventType                { return EventDelivered }
func (ClosedDetails) EventType() EventType                   { return EventClosed }
func (ReopenedDetails) EventType() EventType                 { return EventReopened }
func (RatedDetails) EventType() EventType                    { return EventRated }
func (RefundedDetails) EventType() EventType                 { return EventRefunded }
func (DisputedDetails) EventType() EventType                 { return EventDisputed }
func (ArbitratedDetails) EventType() EventType               { return EventArbitrated }
func (ArbitrationRefusedDetails) EventType() EventType       { return EventArbitrationRefused }
func (WhitelistedWorkerAddedDetails) EventType() EventType   { return EventWhitelistedWorkerAdded }
func (WhitelistedWorkerRemovedDetails) EventType() EventType { return EventWhitelistedWorkerRemoved }
func (CollateralWithdrawnDetails) EventType() EventType      { return EventCollateralWithdrawn }
func (WorkerMessageDetails) EventType() EventType            { return EventWorkerMessage }
func (OwnerMessageDetails) EventType() EventType             { return EventOwnerMessage }

func (CreatedDetails) details()                  {}
func (UpdatedDetails) details()                  {}
func (TakenDetails) details()                    {}
func (PaidDetails) details()                     {}
func (SignedDetails) details()                   {}
func (CompletedDetails) details()                {}
func (DeliveredDetails) details()                {}
func (ClosedDetails) details()                   {}
func (ReopenedDetails) details()                 {}
func (RatedDetails) details()                    {}
func (RefundedDetails) details()                 {}
func (DisputedDetails) details()                 {}
func (ArbitratedDetails) details()               {}
func (ArbitrationRefusedDetails) details()       {}
func (WhitelistedWorkerAddedDetails) details()   {}
func (WhitelistedWorkerRemovedDetails) details() {}
func (CollateralWithdrawnDetails) details()      {}
func (WorkerMessageDetails) details()            {}
func (OwnerMessageDetails) details()             {}
