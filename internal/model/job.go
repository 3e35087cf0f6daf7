package model

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// JobState is the lifecycle state of a job.
type JobState uint8

const (
	JobStateOpen JobState = iota
	JobStateTaken
	JobStateClosed
)

func (s JobState) String() string {
	switch s {
	case JobStateOpen:
		return "Open"
	case JobStateTaken:
		return "Taken"
	case JobStateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("JobState(%d)", uint8(s))
	}
}

func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Open":
		*s = JobStateOpen
	case "Taken":
		*s = JobStateTaken
	case "Closed":
		*s = JobStateClosed
	default:
		return fmt.Errorf("unknown job state: %s", text)
	}
	return nil
}

// Roles holds the parties of a job.
type Roles struct {
	Creator    common.Address `json:"creator"`
	Worker     common.Address `json:"worker"`
	Arbitrator common.Address `json:"arbitrator"`
}

// JobTimes holds lifecycle timestamps in unix seconds; zero means not yet occurred.
type JobTimes struct {
	CreatedAt    uint64 `json:"created_at"`
	OpenedAt     uint64 `json:"opened_at"`
	AssignedAt   uint64 `json:"assigned_at"`
	ClosedAt     uint64 `json:"closed_at"`
	DisputedAt   uint64 `json:"disputed_at"`
	ArbitratedAt uint64 `json:"arbitrated_at"`
	UpdatedAt    uint64 `json:"updated_at"`
	LastEventAt  uint64 `json:"last_event_at"`
}

// Job is the reconstructed state of a job as of some event.
//
// Snapshots are values shared between consumers: uint256 fields are never modified in
// place and slices are copied by Clone before any mutation.
type Job struct {
	ID                 string           `json:"id"`
	State              JobState         `json:"state"`
	Title              string           `json:"title"`
	ContentHash        common.Hash      `json:"content_hash"`
	MultipleApplicants bool             `json:"multiple_applicants"`
	Tags               []string         `json:"tags"`
	Amount             *uint256.Int     `json:"amount"`
	Token              common.Address   `json:"token"`
	MaxTime            uint32           `json:"max_time"`
	DeliveryMethod     string           `json:"delivery_method"`
	Roles              Roles            `json:"roles"`
	WhitelistWorkers   bool             `json:"whitelist_workers"`
	AllowedWorkers     []common.Address `json:"allowed_workers"`
	ResultHash         common.Hash      `json:"result_hash"`
	Rating             uint8            `json:"rating"`
	Disputed           bool             `json:"disputed"`
	CollateralOwed     *uint256.Int     `json:"collateral_owed"`
	EscrowID           *uint256.Int     `json:"escrow_id"`
	JobTimes           JobTimes         `json:"job_times"`
	EventCount         uint64           `json:"event_count"`
}

// NewJob returns the empty snapshot a reduction starts from.
func NewJob(id string) Job {
	return Job{
		ID:             id,
		Tags:           []string{},
		Amount:         new(uint256.Int),
		AllowedWorkers: []common.Address{},
		CollateralOwed: new(uint256.Int),
		EscrowID:       new(uint256.Int),
	}
}

// Clone returns a copy that shares no mutable memory with j.
func (j Job) Clone() Job {
	out := j
	if j.Tags != nil {
		out.Tags = append(make([]string, 0, len(j.Tags)), j.Tags...)
	}
	if j.AllowedWorkers != nil {
		out.AllowedWorkers = append(make([]common.Address, 0, len(j.AllowedWorkers)), j.AllowedWorkers...)
	}
	return out
}

// IsAllowedWorker reports whether worker is in the whitelist.
func (j Job) IsAllowedWorker(worker common.Address) bool {
	i := searchAddress(j.AllowedWorkers, worker)
	return i < len(j.AllowedWorkers) && j.AllowedWorkers[i] == worker
}

// AddAllowedWorker inserts worker keeping the whitelist sorted and unique.
func (j *Job) AddAllowedWorker(worker common.Address) {
	if j.IsAllowedWorker(worker) {
		return
	}
	i := searchAddress(j.AllowedWorkers, worker)
	next := make([]common.Address, 0, len(j.AllowedWorkers)+1)
	next = append(next, j.AllowedWorkers[:i]...)
	next = append(next, worker)
	next = append(next, j.AllowedWorkers[i:]...)
	j.AllowedWorkers = next
}

// RemoveAllowedWorker drops worker from the whitelist if present.
func (j *Job) RemoveAllowedWorker(worker common.Address) {
	i := searchAddress(j.AllowedWorkers, worker)
	if i >= len(j.AllowedWorkers) || j.AllowedWorkers[i] != worker {
		return
	}
	next := make([]common.Address, 0, len(j.AllowedWorkers)-1)
	next = append(next, j.AllowedWorkers[:i]...)
	next = append(next, j.AllowedWorkers[i+1:]...)
	j.AllowedWorkers = next
}

func searchAddress(list []common.Address, addr common.Address) int {
	return sort.Search(len(list), func(i int) bool {
		return bytes.Compare(list[i][:], addr[:]) >= 0
	})
}

// U256String renders a possibly nil uint256 as a decimal string.
func U256String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

// U256Equal compares two possibly nil uint256 values, treating nil as zero.
func U256Equal(a, b *uint256.Int) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.IsZero()
	case b == nil:
		return a.IsZero()
	default:
		return a.Eq(b)
	}
}
