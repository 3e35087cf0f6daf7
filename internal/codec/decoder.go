// Package codec converts job event payloads between their binary wire form and
// model.Details.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"jobevents/internal/model"
)

type decodeFunc func(raw []byte) (model.Details, error)

var decoders = map[model.EventType]decodeFunc{
	model.EventCreated:                  decodeCreated,
	model.EventUpdated:                  decodeUpdated,
	model.EventTaken:                    decodeTaken,
	model.EventPaid:                     empty(model.PaidDetails{}),
	model.EventSigned:                   decodeSigned,
	model.EventCompleted:                empty(model.CompletedDetails{}),
	model.EventDelivered:                decodeDelivered,
	model.EventClosed:                   empty(model.ClosedDetails{}),
	model.EventReopened:                 empty(model.ReopenedDetails{}),
	model.EventRated:                    decodeRated,
	model.EventRefunded:                 empty(model.RefundedDetails{}),
	model.EventDisputed:                 decodeDisputed,
	model.EventArbitrated:               decodeArbitrated,
	model.EventArbitrationRefused:       empty(model.ArbitrationRefusedDetails{}),
	model.EventWhitelistedWorkerAdded:   decodeWhitelistedWorkerAdded,
	model.EventWhitelistedWorkerRemoved: decodeWhitelistedWorkerRemoved,
	model.EventCollateralWithdrawn:      decodeCollateralWithdrawn,
	model.EventWorkerMessage:            decodeWorkerMessage,
	model.EventOwnerMessage:             decodeOwnerMessage,
}

// Decode parses raw according to the layout of t.
//
// Unknown tags return (nil, nil) so callers can keep processing. A payload that ends
// early returns an error wrapping ErrTruncated; trailing bytes are ignored.
func Decode(t model.EventType, raw []byte) (model.Details, error) {
	decode, ok := decoders[t]
	if !ok {
		return nil, nil
	}
	details, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return details, nil
}

func empty(d model.Details) decodeFunc {
	return func([]byte) (model.Details, error) {
		return d, nil
	}
}

func decodeCreated(raw []byte) (model.Details, error) {
	c := newCursor(raw)
	var (
		d   model.CreatedDetails
		err error
	)
	if d.Title, err = c.str("title"); err != nil {
		return nil, err
	}
	if d.ContentHash, err = c.hash("contentHash"); err != nil {
		return nil, err
	}
	if d.MultipleApplicants, err = c.boolean("multipleApplicants"); err != nil {
		return nil, err
	}
	if d.Tags, err = c.strs("tags"); err != nil {
		return nil, err
	}
	if d.Token, err = c.address("token"); err != nil {
		return nil, err
	}
	if d.Amount, err = c.u256("amount"); err != nil {
		return nil, err
	}
	if d.MaxTime, err = c.u32("maxTime"); err != nil {
		return nil, err
	}
	if d.DeliveryMethod, err = c.str("deliveryMethod"); err != nil {
		return nil, err
	}
	if d.Arbitrator, err = c.address("arbitrator"); err != nil {
		return nil, err
	}
	if d.WhitelistWorkers, err = c.boolean("whitelistWorkers"); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeUpdated(raw []byte) (model.Details, error) {
	c := newCursor(raw)
	var (
		d   model.UpdatedDetails
		err error
	)
	if d.Title, err = c.str("title"); err != nil {
		return nil, err
	}
	if d.ContentHash, err = c.hash("contentHash"); err != nil {
		return nil, err
	}
	if d.Tags, err = c.strs("tags"); err != nil {
		return nil, err
	}
	if d.Amount, err = c.u256("amount"); err != nil {
		return nil, err
	}
	if d.MaxTime, err = c.u32("maxTime"); err != nil {
		return nil, err
	}
	if d.Arbitrator, err = c.address("arbitrator"); err != nil {
		return nil, err
	}
	if d.WhitelistWorkers, err = c.boolean("whitelistWorkers"); err != nil {
		return nil, err
	}
	return d, nil
}

// decodeTaken accepts an empty payload from contracts that predate escrow ids.
func decodeTaken(raw []byte) (model.Details, error) {
	if len(raw) == 0 {
		return model.TakenDetails{EscrowID: new(uint256.Int)}, nil
	}
	escrowID, err := newCursor(raw).u256("escrowId")
	if err != nil {
		return nil, err
	}
	return model.TakenDetails{EscrowID: escrowID}, nil
}

func decodeDelivered(raw []byte) (model.Details, error) {
	resultHash, err := newCursor(raw).hash("resultHash")
	if err != nil {
		return nil, err
	}
	return model.DeliveredDetails{ResultHash: resultHash}, nil
}

func decodeDisputed(raw []byte) (model.Details, error) {
	c := newCursor(raw)
	sessionKey, err := c.bytes("encryptedSessionKey")
	if err != nil {
		return nil, err
	}
	content, err := c.bytes("encryptedContent")
	if err != nil {
		return nil, err
	}
	return model.DisputedDetails{EncryptedSessionKey: sessionKey, EncryptedContent: content}, nil
}

func decodeWhitelistedWorkerAdded(raw []byte) (model.Details, error) {
	worker, err := newCursor(raw).address("worker")
	if err != nil {
		return nil, err
	}
	return model.WhitelistedWorkerAddedDetails{Worker: worker}, nil
}

func decodeWhitelistedWorkerRemoved(raw []byte) (model.Details, error) {
	worker, err := newCursor(raw).address("worker")
	if err != nil {
		return nil, err
	}
	return model.WhitelistedWorkerRemovedDetails{Worker: worker}, nil
}

func decodeCollateralWithdrawn(raw []byte) (model.Details, error) {
	amount, err := newCursor(raw).u256("amount")
	if err != nil {
		return nil, err
	}
	return model.CollateralWithdrawnDetails{Amount: amount}, nil
}

func decodeMessage(raw []byte) (model.MessageDetails, error) {
	c := newCursor(raw)
	recipient, err := c.address("recipient")
	if err != nil {
		return model.MessageDetails{}, err
	}
	contentHash, err := c.hash("contentHash")
	if err != nil {
		return model.MessageDetails{}, err
	}
	return model.MessageDetails{Recipient: recipient, ContentHash: contentHash}, nil
}

func decodeWorkerMessage(raw []byte) (model.Details, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return model.WorkerMessageDetails{MessageDetails: msg}, nil
}

func decodeOwnerMessage(raw []byte) (model.Details, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return model.OwnerMessageDetails{MessageDetails: msg}, nil
}

// Fixed layouts. Offsets are absolute within the payload.

const (
	signedLen     = 34
	arbitratedLen = 120
)

func decodeSigned(raw []byte) (model.Details, error) {
	if len(raw) < signedLen {
		return nil, truncated("signed", signedLen, len(raw))
	}
	return model.SignedDetails{
		Revision:      binary.BigEndian.Uint16(raw[0:2]),
		SignatureHash: common.BytesToHash(raw[2:34]),
	}, nil
}

func decodeRated(raw []byte) (model.Details, error) {
	if len(raw) < 1 {
		return nil, truncated("rating", 1, len(raw))
	}
	return model.RatedDetails{
		Rating: raw[0],
		Review: string(raw[1:]),
	}, nil
}

func decodeArbitrated(raw []byte) (model.Details, error) {
	if len(raw) < arbitratedLen {
		return nil, truncated("arbitrated", arbitratedLen, len(raw))
	}
	return model.ArbitratedDetails{
		CreatorShare:  binary.BigEndian.Uint16(raw[0:2]),
		CreatorAmount: new(uint256.Int).SetBytes32(raw[2:34]),
		WorkerShare:   binary.BigEndian.Uint16(raw[34:36]),
		WorkerAmount:  new(uint256.Int).SetBytes32(raw[36:68]),
		ReasonHash:    common.BytesToHash(raw[68:100]),
		Worker:        common.BytesToAddress(raw[100:120]),
	}, nil
}

func truncated(field string, need, have int) error {
	return fmt.Errorf("%s: need %d bytes, have %d: %w", field, need, have, ErrTruncated)
}
