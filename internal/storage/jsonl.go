package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"jobevents/internal/model"
)

const maxLineBytes = 10 * 1024 * 1024

// JSONLSink appends event records to a JSONL file.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// PutEventBatch appends a batch of records as JSON lines.
func (s *JSONLSink) PutEventBatch(_ context.Context, records []model.RawEventRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := NewJSONLWriter(s.path, true)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := w.Write(record); err != nil {
			w.Close()
			return fmt.Errorf("write event record: %w", err)
		}
	}
	return w.Close()
}

// LoadJobEvents scans the file for jobID's records and returns them in chain order.
// A log that was later marked removed (reorged out) is dropped and seq is assigned
// by position.
func (s *JSONLSink) LoadJobEvents(_ context.Context, jobID string) ([]model.RawEvent, error) {
	var records []model.RawEventRecord
	removed := make(map[string]struct{})
	err := ScanRawEvents(s.path, func(record model.RawEventRecord) error {
		if record.JobID != jobID {
			return nil
		}
		if record.Removed {
			removed[recordKey(record)] = struct{}{}
			return nil
		}
		records = append(records, record)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	live := records[:0]
	for _, record := range records {
		if _, ok := removed[recordKey(record)]; !ok {
			live = append(live, record)
		}
	}
	return OrderJobEvents(live)
}

// OrderJobEvents sorts records by chain position, drops duplicates and numbers them.
func OrderJobEvents(records []model.RawEventRecord) ([]model.RawEvent, error) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})

	seen := make(map[string]struct{}, len(records))
	events := make([]model.RawEvent, 0, len(records))
	for _, record := range records {
		id := recordKey(record)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		ev, err := record.ToRawEvent()
		if err != nil {
			return nil, fmt.Errorf("job %s block %d log %d: %w", record.JobID, record.BlockNumber, record.LogIndex, err)
		}
		seq := uint64(len(events))
		ev.Seq = &seq
		events = append(events, ev)
	}
	return events, nil
}

func recordKey(record model.RawEventRecord) string {
	return fmt.Sprintf("%d:%s:%d", record.BlockNumber, record.TxHash, record.LogIndex)
}

// ScanRawEvents calls fn for each record in a JSONL file. Lines that fail to parse are
// passed to onErr (when set) and skipped.
func ScanRawEvents(path string, fn func(model.RawEventRecord) error, onErr func(line int, err error)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record model.RawEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			if onErr != nil {
				onErr(lineNo, err)
			}
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

// JSONLWriter writes one JSON value per line.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLWriter opens path for writing, truncating unless appendMode is set.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &JSONLWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// Flush pushes buffered lines to the file.
func (w *JSONLWriter) Flush() error {
	return w.writer.Flush()
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// JobsTouchedSince lists jobs with records above fromBlock and the highest such block.
func (s *JSONLSink) JobsTouchedSince(_ context.Context, fromBlock uint64) ([]string, uint64, error) {
	touched := make(map[string]struct{})
	var highest uint64
	err := ScanRawEvents(s.path, func(record model.RawEventRecord) error {
		if record.BlockNumber <= fromBlock {
			return nil
		}
		touched[record.JobID] = struct{}{}
		if record.BlockNumber > highest {
			highest = record.BlockNumber
		}
		return nil
	}, nil)
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]string, 0, len(touched))
	for jobID := range touched {
		jobs = append(jobs, jobID)
	}
	sort.Strings(jobs)
	return jobs, highest, nil
}

// JSONLSnapshots appends materialized job snapshots to a JSONL file.
type JSONLSnapshots struct {
	Path string
}

func (s *JSONLSnapshots) UpsertJobSnapshots(_ context.Context, jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	w, err := NewJSONLWriter(s.Path, true)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := w.Write(job); err != nil {
			w.Close()
			return fmt.Errorf("write snapshot %s: %w", job.ID, err)
		}
	}
	return w.Close()
}
