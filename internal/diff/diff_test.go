package diff

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobevents/internal/model"
)

func TestDiffEqualSnapshots(t *testing.T) {
	job := sampleJob()
	assert.Empty(t, Diff(job, job.Clone()))
}

func TestDiffNilAndEmptyAreEqual(t *testing.T) {
	a := model.Job{ID: "1"}
	b := model.NewJob("1")
	assert.Empty(t, Diff(a, b))
}

func TestDiffFromZeroJob(t *testing.T) {
	diffs := Diff(model.Job{}, sampleJob())

	names := fieldNames(diffs)
	assert.Contains(t, names, "id")
	assert.Contains(t, names, "title")
	assert.Contains(t, names, "roles.creator")
	assert.Contains(t, names, "allowedWorkers")
	assert.NotContains(t, names, "roles.worker")
}

func TestDiffScalarValues(t *testing.T) {
	prev := sampleJob()
	next := prev.Clone()
	next.State = model.JobStateTaken
	next.Roles.Worker = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	next.EscrowID = uint256.NewInt(12)
	next.JobTimes.AssignedAt = 200
	next.JobTimes.LastEventAt = 200
	next.EventCount = 2

	diffs := Diff(prev, next)
	require.Equal(t, []string{
		"state",
		"roles.worker",
		"escrowId",
		"jobTimes.assignedAt",
		"jobTimes.lastEventAt",
		"eventCount",
	}, fieldNames(diffs))

	assert.Equal(t, "Open", diffs[0].Previous)
	assert.Equal(t, "Taken", diffs[0].Next)
	assert.Equal(t, next.Roles.Worker.Hex(), diffs[1].Next)
	assert.Equal(t, "0", diffs[2].Previous)
	assert.Equal(t, "12", diffs[2].Next)
	assert.Equal(t, uint64(0), diffs[3].Previous)
	assert.Equal(t, uint64(200), diffs[3].Next)
	assert.Nil(t, diffs[0].Added)
}

func TestDiffTagsOrderSensitive(t *testing.T) {
	prev := sampleJob()
	next := prev.Clone()
	next.Tags = []string{"b", "a"}

	diffs := Diff(prev, next)
	require.Len(t, diffs, 1)
	assert.Equal(t, "tags", diffs[0].Field)
	assert.Equal(t, []string{"a", "b"}, diffs[0].Previous)
	assert.Equal(t, []string{"b", "a"}, diffs[0].Next)
}

func TestDiffAllowedWorkersAsSet(t *testing.T) {
	w1 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	w2 := common.HexToAddress("0x0000000000000000000000000000000000000002")
	w3 := common.HexToAddress("0x0000000000000000000000000000000000000003")

	prev := sampleJob()
	prev.AllowedWorkers = []common.Address{}
	prev.AddAllowedWorker(w1)
	prev.AddAllowedWorker(w2)

	next := prev.Clone()
	next.RemoveAllowedWorker(w1)
	next.AddAllowedWorker(w3)

	diffs := Diff(prev, next)
	require.Len(t, diffs, 1)
	d := diffs[0]
	assert.Equal(t, "allowedWorkers", d.Field)
	assert.Equal(t, []string{w3.Hex()}, d.Added)
	assert.Equal(t, []string{w1.Hex()}, d.Removed)
	assert.Equal(t, []string{w1.Hex(), w2.Hex()}, d.Previous)
	assert.Equal(t, []string{w2.Hex(), w3.Hex()}, d.Next)
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	prev := sampleJob()
	next := prev.Clone()
	next.Tags = append(next.Tags, "c")
	before := prev.Clone()

	Diff(prev, next)
	assert.Equal(t, before, prev)
}

func TestFieldsOrder(t *testing.T) {
	names := fieldOrder()
	assert.Equal(t, "id", names[0])
	assert.Equal(t, "allowedWorkers", names[6])
	assert.Equal(t, "eventCount", names[len(names)-1])
}

func TestDiffReportsEveryJobField(t *testing.T) {
	base := model.NewJob("7")
	var seen []string

	jobType := reflect.TypeOf(base)
	for i := 0; i < jobType.NumField(); i++ {
		f := jobType.Field(i)
		if f.Type.Kind() == reflect.Struct {
			for j := 0; j < f.Type.NumField(); j++ {
				sub := f.Type.Field(j)
				path := jsonName(f) + "." + jsonName(sub)
				seen = append(seen, path)
				assertSingleDiff(t, base, []int{i, j}, path)
			}
			continue
		}
		path := jsonName(f)
		seen = append(seen, path)
		assertSingleDiff(t, base, []int{i}, path)
	}

	assert.ElementsMatch(t, seen, fieldOrder())
}

func assertSingleDiff(t *testing.T, base model.Job, index []int, path string) {
	t.Helper()
	next := base.Clone()
	change(t, reflect.ValueOf(&next).Elem().FieldByIndex(index), path)

	diffs := Diff(base, next)
	require.Len(t, diffs, 1, path)
	assert.Equal(t, path, diffs[0].Field)
}

// change sets v to a value that differs from the one NewJob leaves in place.
func change(t *testing.T, v reflect.Value, path string) {
	t.Helper()
	switch v.Kind() {
	case reflect.String:
		v.SetString(v.String() + "changed")
	case reflect.Bool:
		v.SetBool(!v.Bool())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(v.Uint() + 7)
	case reflect.Array:
		v.Index(0).SetUint(v.Index(0).Uint() + 1)
	case reflect.Ptr:
		if v.Type() != reflect.TypeOf(&uint256.Int{}) {
			t.Fatalf("%s: unhandled pointer type %s", path, v.Type())
		}
		v.Set(reflect.ValueOf(uint256.NewInt(7)))
	case reflect.Slice:
		elem := reflect.New(v.Type().Elem()).Elem()
		change(t, elem, path)
		v.Set(reflect.Append(reflect.MakeSlice(v.Type(), 0, 1), elem))
	default:
		t.Fatalf("%s: unhandled kind %s", path, v.Kind())
	}
}

// jsonName converts the snake_case json tag to the camelCase name used in diffs.
func jsonName(f reflect.StructField) string {
	tag := strings.Split(f.Tag.Get("json"), ",")[0]
	parts := strings.Split(tag, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func sampleJob() model.Job {
	job := model.NewJob("7")
	job.Title = "Translate whitepaper"
	job.Tags = []string{"a", "b"}
	job.Amount = uint256.NewInt(100)
	job.Roles.Creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	job.AllowedWorkers = []common.Address{common.HexToAddress("0x00000000000000000000000000000000000000a1")}
	job.JobTimes.CreatedAt = 100
	job.JobTimes.OpenedAt = 100
	job.JobTimes.LastEventAt = 100
	job.EventCount = 1
	return job
}

func fieldNames(diffs []model.FieldDiff) []string {
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, d.Field)
	}
	return out
}
