// Package diff computes field-level changes between consecutive job snapshots.
package diff

import (
	"reflect"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"jobevents/internal/model"
)

const allowedWorkersField = "allowedWorkers"

type scalarField struct {
	name  string
	value func(model.Job) interface{}
}

// fields lists every scalar snapshot field in output order. allowedWorkers is handled
// separately as a set and reported after tags.
var fields = []scalarField{
	{"id", func(j model.Job) interface{} { return j.ID }},
	{"state", func(j model.Job) interface{} { return j.State.String() }},
	{"title", func(j model.Job) interface{} { return j.Title }},
	{"contentHash", func(j model.Job) interface{} { return j.ContentHash.Hex() }},
	{"multipleApplicants", func(j model.Job) interface{} { return j.MultipleApplicants }},
	{"tags", func(j model.Job) interface{} { return tags(j.Tags) }},
	{"amount", func(j model.Job) interface{} { return model.U256String(j.Amount) }},
	{"token", func(j model.Job) interface{} { return j.Token.Hex() }},
	{"maxTime", func(j model.Job) interface{} { return j.MaxTime }},
	{"deliveryMethod", func(j model.Job) interface{} { return j.DeliveryMethod }},
	{"roles.creator", func(j model.Job) interface{} { return j.Roles.Creator.Hex() }},
	{"roles.worker", func(j model.Job) interface{} { return j.Roles.Worker.Hex() }},
	{"roles.arbitrator", func(j model.Job) interface{} { return j.Roles.Arbitrator.Hex() }},
	{"whitelistWorkers", func(j model.Job) interface{} { return j.WhitelistWorkers }},
	{"resultHash", func(j model.Job) interface{} { return j.ResultHash.Hex() }},
	{"rating", func(j model.Job) interface{} { return j.Rating }},
	{"disputed", func(j model.Job) interface{} { return j.Disputed }},
	{"collateralOwed", func(j model.Job) interface{} { return model.U256String(j.CollateralOwed) }},
	{"escrowId", func(j model.Job) interface{} { return model.U256String(j.EscrowID) }},
	{"jobTimes.createdAt", func(j model.Job) interface{} { return j.JobTimes.CreatedAt }},
	{"jobTimes.openedAt", func(j model.Job) interface{} { return j.JobTimes.OpenedAt }},
	{"jobTimes.assignedAt", func(j model.Job) interface{} { return j.JobTimes.AssignedAt }},
	{"jobTimes.closedAt", func(j model.Job) interface{} { return j.JobTimes.ClosedAt }},
	{"jobTimes.disputedAt", func(j model.Job) interface{} { return j.JobTimes.DisputedAt }},
	{"jobTimes.arbitratedAt", func(j model.Job) interface{} { return j.JobTimes.ArbitratedAt }},
	{"jobTimes.updatedAt", func(j model.Job) interface{} { return j.JobTimes.UpdatedAt }},
	{"jobTimes.lastEventAt", func(j model.Job) interface{} { return j.JobTimes.LastEventAt }},
	{"eventCount", func(j model.Job) interface{} { return j.EventCount }},
}

// fieldOrder returns the names Diff can report, in output order.
func fieldOrder() []string {
	out := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, f.name)
		if f.name == "tags" {
			out = append(out, allowedWorkersField)
		}
	}
	return out
}

// Diff returns the fields that differ between prev and next. The result is empty when
// the snapshots are equal.
func Diff(prev, next model.Job) []model.FieldDiff {
	var out []model.FieldDiff
	for _, f := range fields {
		before, after := f.value(prev), f.value(next)
		if !reflect.DeepEqual(before, after) {
			out = append(out, model.FieldDiff{Field: f.name, Previous: before, Next: after})
		}
		if f.name == "tags" {
			if d, ok := diffAllowedWorkers(prev.AllowedWorkers, next.AllowedWorkers); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func diffAllowedWorkers(prev, next []common.Address) (model.FieldDiff, bool) {
	before := mapset.NewSet[string](hexes(prev)...)
	after := mapset.NewSet[string](hexes(next)...)

	added := sorted(after.Difference(before).ToSlice())
	removed := sorted(before.Difference(after).ToSlice())
	if len(added) == 0 && len(removed) == 0 {
		return model.FieldDiff{}, false
	}

	return model.FieldDiff{
		Field:    allowedWorkersField,
		Previous: sorted(before.ToSlice()),
		Next:     sorted(after.ToSlice()),
		Added:    added,
		Removed:  removed,
	}, true
}

func tags(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func hexes(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}

func sorted(in []string) []string {
	if in == nil {
		in = []string{}
	}
	sort.Strings(in)
	return in
}
