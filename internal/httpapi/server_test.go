package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobevents/internal/codec"
	"jobevents/internal/content"
	"jobevents/internal/metrics"
	"jobevents/internal/model"
	"jobevents/internal/pipeline"
	"jobevents/internal/sessionkey"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	worker  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type fakeEvents struct {
	events map[string][]model.RawEvent
	err    error
}

func (f fakeEvents) LoadJobEvents(_ context.Context, jobID string) ([]model.RawEvent, error) {
	return f.events[jobID], f.err
}

type fakeSnapshots map[string]json.RawMessage

func (f fakeSnapshots) LoadJobSnapshot(_ context.Context, jobID string) (json.RawMessage, bool, error) {
	s, ok := f[jobID]
	return s, ok, nil
}

func TestHealth(t *testing.T) {
	srv := NewServer(Config{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := NewServer(Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func TestJobEvents(t *testing.T) {
	srv := NewServer(Config{Events: fakeEvents{events: map[string][]model.RawEvent{"1": history(t, common.Hash{})}}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/1/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 3)

	var first struct {
		JobID string `json:"job_id"`
		Job   struct {
			State string `json:"state"`
			Title string `json:"title"`
		} `json:"job"`
	}
	require.NoError(t, json.Unmarshal(body[0], &first))
	assert.Equal(t, "1", first.JobID)
	assert.Equal(t, "Open", first.Job.State)
	assert.Equal(t, "Audit", first.Job.Title)
}

func TestJobEventsNotFound(t *testing.T) {
	srv := NewServer(Config{Events: fakeEvents{}})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/404/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEventsSourceFailure(t *testing.T) {
	srv := NewServer(Config{Events: fakeEvents{err: errors.New("db down")}})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/1/events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobEventsResolve(t *testing.T) {
	key := make([]byte, sessionkey.KeySize)
	key[0] = 7
	sealed, err := sessionkey.Seal(key, []byte("hi there"))
	require.NoError(t, err)
	hash := common.HexToHash("0x99")

	mem := content.NewMemoryStore()
	mem.Put(hash, sealed)
	pipe := pipeline.New(content.NewResolver(mem, content.ResolverConfig{}), pipeline.Config{})
	srv := NewServer(Config{
		Events:   fakeEvents{events: map[string][]model.RawEvent{"1": history(t, hash)}},
		Pipeline: pipe,
		Keys:     sessionkey.Keys{sessionkey.PairKey(worker, creator): key},
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/1/events?resolve=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []struct {
		Details struct {
			Content string `json:"content"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 3)
	assert.Equal(t, "hi there", body[2].Details.Content)
}

func TestJobPrefersSnapshot(t *testing.T) {
	srv := NewServer(Config{
		Events:    fakeEvents{events: map[string][]model.RawEvent{"1": history(t, common.Hash{})}},
		Snapshots: fakeSnapshots{"2": json.RawMessage(`{"id":"2","title":"stored"}`)},
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"2","title":"stored"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var job struct {
		ID         string `json:"id"`
		State      string `json:"state"`
		EventCount uint64 `json:"event_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "1", job.ID)
	assert.Equal(t, "Taken", job.State)
	assert.Equal(t, uint64(3), job.EventCount)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg, nil)
	sink.UnknownEvent()

	srv := NewServer(Config{Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobevents_unknown_events_total 1")
}

func history(t *testing.T, messageHash common.Hash) []model.RawEvent {
	t.Helper()
	return []model.RawEvent{
		event(t, creator, 100, model.CreatedDetails{Title: "Audit"}),
		event(t, worker, 200, model.TakenDetails{}),
		event(t, worker, 210, model.WorkerMessageDetails{MessageDetails: model.MessageDetails{Recipient: creator, ContentHash: messageHash}}),
	}
}

func event(t *testing.T, from common.Address, ts uint64, details model.Details) model.RawEvent {
	t.Helper()
	data, err := codec.Encode(details)
	require.NoError(t, err)
	return model.RawEvent{Type: details.EventType(), Address: from, Data: data, Timestamp: ts}
}
