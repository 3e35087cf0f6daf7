package codec

import (
	"encoding/binary"
	"fmt"

	"jobevents/internal/model"
)

// Encode produces the wire payload for details. Decode(d.EventType(), Encode(d)) yields d
// once nil fields are read as their empty form: nil tags and byte fields come back as
// empty slices and nil amounts as zero.
func Encode(details model.Details) ([]byte, error) {
	w := &writer{}
	switch d := details.(type) {
	case model.CreatedDetails:
		if err := w.str(d.Title); err != nil {
			return nil, err
		}
		w.hash(d.ContentHash)
		w.boolean(d.MultipleApplicants)
		if err := w.strs(d.Tags); err != nil {
			return nil, err
		}
		w.address(d.Token)
		w.u256(d.Amount)
		w.u32(d.MaxTime)
		if err := w.str(d.DeliveryMethod); err != nil {
			return nil, err
		}
		w.address(d.Arbitrator)
		w.boolean(d.WhitelistWorkers)
	case model.UpdatedDetails:
		if err := w.str(d.Title); err != nil {
			return nil, err
		}
		w.hash(d.ContentHash)
		if err := w.strs(d.Tags); err != nil {
			return nil, err
		}
		w.u256(d.Amount)
		w.u32(d.MaxTime)
		w.address(d.Arbitrator)
		w.boolean(d.WhitelistWorkers)
	case model.TakenDetails:
		w.u256(d.EscrowID)
	case model.DeliveredDetails:
		w.hash(d.ResultHash)
	case model.DisputedDetails:
		if err := w.bytes(d.EncryptedSessionKey); err != nil {
			return nil, err
		}
		if err := w.bytes(d.EncryptedContent); err != nil {
			return nil, err
		}
	case model.WhitelistedWorkerAddedDetails:
		w.address(d.Worker)
	case model.WhitelistedWorkerRemovedDetails:
		w.address(d.Worker)
	case model.CollateralWithdrawnDetails:
		w.u256(d.Amount)
	case model.WorkerMessageDetails:
		w.address(d.Recipient)
		w.hash(d.ContentHash)
	case model.OwnerMessageDetails:
		w.address(d.Recipient)
		w.hash(d.ContentHash)
	case model.SignedDetails:
		w.buf = make([]byte, signedLen)
		binary.BigEndian.PutUint16(w.buf[0:2], d.Revision)
		copy(w.buf[2:34], d.SignatureHash.Bytes())
	case model.RatedDetails:
		w.u8(d.Rating)
		w.buf = append(w.buf, d.Review...)
	case model.ArbitratedDetails:
		w.u16(d.CreatorShare)
		w.u256(d.CreatorAmount)
		w.u16(d.WorkerShare)
		w.u256(d.WorkerAmount)
		w.hash(d.ReasonHash)
		w.address(d.Worker)
	case model.PaidDetails, model.CompletedDetails, model.ClosedDetails,
		model.ReopenedDetails, model.RefundedDetails, model.ArbitrationRefusedDetails:
	default:
		return nil, fmt.Errorf("encode: unsupported details %T", details)
	}
	return w.buf, nil
}
