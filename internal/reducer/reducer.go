// Package reducer folds a job's raw events into a sequence of snapshots.
package reducer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"jobevents/internal/codec"
	"jobevents/internal/diff"
	"jobevents/internal/model"
)

// Reduce decodes and applies events in order. The result has one entry per input event
// and entry i carries the snapshot after events[0..i].
func Reduce(jobID string, events []model.RawEvent) []model.JobEventWithDiffs {
	out := make([]model.JobEventWithDiffs, 0, len(events))
	job := model.NewJob(jobID)
	for _, ev := range events {
		rec := Apply(job, ev)
		out = append(out, rec)
		job = rec.Job
	}
	return out
}

// Apply applies a single event on top of prev. prev is not modified.
//
// Events that fail to decode or carry an unknown tag only advance the bookkeeping
// fields; DecodeError is set on the record when decoding failed.
func Apply(prev model.Job, ev model.RawEvent) model.JobEventWithDiffs {
	rec := model.JobEventWithDiffs{
		JobID:       prev.ID,
		Type:        ev.Type,
		Address:     ev.Address,
		Data:        ev.Data,
		Timestamp:   ev.Timestamp,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		Seq:         ev.Seq,
	}

	details, err := codec.Decode(ev.Type, ev.Data)
	if err != nil {
		rec.DecodeError = err.Error()
	}
	rec.Details = details

	next := prev.Clone()
	if details != nil {
		applyDetails(&next, ev, details)
	}
	next.EventCount++
	next.JobTimes.LastEventAt = ev.Timestamp

	// the first event is compared against the empty job so the identity shows up
	baseline := prev
	if prev.EventCount == 0 {
		baseline = model.Job{}
	}

	rec.Job = next
	rec.Diffs = diff.Diff(baseline, next)
	return rec
}

func applyDetails(job *model.Job, ev model.RawEvent, details model.Details) {
	ts := ev.Timestamp
	switch d := details.(type) {
	case model.CreatedDetails:
		job.Title = d.Title
		job.ContentHash = d.ContentHash
		job.MultipleApplicants = d.MultipleApplicants
		job.Tags = copyTags(d.Tags)
		job.Amount = orZero(d.Amount)
		job.Token = d.Token
		job.MaxTime = d.MaxTime
		job.DeliveryMethod = d.DeliveryMethod
		job.Roles.Arbitrator = d.Arbitrator
		job.WhitelistWorkers = d.WhitelistWorkers
		job.Roles.Creator = ev.Address
		job.State = model.JobStateOpen
		job.JobTimes.CreatedAt = ts
		job.JobTimes.OpenedAt = ts
	case model.UpdatedDetails:
		job.Title = d.Title
		job.ContentHash = d.ContentHash
		job.Tags = copyTags(d.Tags)
		job.Amount = orZero(d.Amount)
		job.MaxTime = d.MaxTime
		job.Roles.Arbitrator = d.Arbitrator
		job.WhitelistWorkers = d.WhitelistWorkers
		job.JobTimes.UpdatedAt = ts
	case model.TakenDetails:
		job.Roles.Worker = ev.Address
		job.EscrowID = orZero(d.EscrowID)
		job.State = model.JobStateTaken
		job.JobTimes.AssignedAt = ts
	case model.DeliveredDetails:
		job.ResultHash = d.ResultHash
	case model.CompletedDetails:
		job.State = model.JobStateClosed
		job.JobTimes.ClosedAt = ts
	case model.RatedDetails:
		job.Rating = d.Rating
	case model.RefundedDetails:
		job.RemoveAllowedWorker(job.Roles.Worker)
		job.Roles.Worker = common.Address{}
		job.EscrowID = new(uint256.Int)
		job.State = model.JobStateOpen
		job.JobTimes.OpenedAt = ts
	case model.DisputedDetails:
		job.Disputed = true
		job.JobTimes.DisputedAt = ts
	case model.ArbitratedDetails:
		job.State = model.JobStateClosed
		job.JobTimes.ArbitratedAt = ts
		job.JobTimes.ClosedAt = ts
	case model.ArbitrationRefusedDetails:
		job.Roles.Arbitrator = common.Address{}
		job.Roles.Worker = common.Address{}
		job.EscrowID = new(uint256.Int)
		job.State = model.JobStateOpen
	case model.WhitelistedWorkerAddedDetails:
		job.AddAllowedWorker(d.Worker)
	case model.WhitelistedWorkerRemovedDetails:
		job.RemoveAllowedWorker(d.Worker)
	case model.CollateralWithdrawnDetails:
		job.CollateralOwed = new(uint256.Int)
	case model.ClosedDetails:
		job.State = model.JobStateClosed
		job.JobTimes.ClosedAt = ts
		job.CollateralOwed = orZero(job.Amount)
	case model.ReopenedDetails:
		job.State = model.JobStateOpen
		job.JobTimes.OpenedAt = ts
		job.JobTimes.ClosedAt = 0
		job.CollateralOwed = new(uint256.Int)
	case model.PaidDetails, model.SignedDetails, model.WorkerMessageDetails, model.OwnerMessageDetails:
		// no snapshot change
	}
}

func copyTags(tags []string) []string {
	return append([]string{}, tags...)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
