package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobevents/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for job events and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store uses when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts job events. A re-delivered event overwrites its row so a
// reorg flip of the removed flag is kept.
func (s *Store) PutEventBatch(ctx context.Context, records []model.RawEventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		data, err := decodeData(r.Data)
		if err != nil {
			return fmt.Errorf("job %s block %d log %d: %w", r.JobID, r.BlockNumber, r.LogIndex, err)
		}
		batch.Queue(`
			INSERT INTO job_events (
				job_id, contract, block_number, block_hash, tx_hash, log_index,
				event_type, address, data, event_ts, removed, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (job_id, block_number, log_index)
			DO UPDATE SET
				block_hash = EXCLUDED.block_hash,
				tx_hash = EXCLUDED.tx_hash,
				event_type = EXCLUDED.event_type,
				address = EXCLUDED.address,
				data = EXCLUDED.data,
				event_ts = EXCLUDED.event_ts,
				removed = EXCLUDED.removed
		`,
			r.JobID,
			r.Contract,
			int64(r.BlockNumber),
			r.BlockHash,
			r.TxHash,
			int64(r.LogIndex),
			int16(r.Type),
			r.Address,
			data,
			int64(r.Timestamp),
			r.Removed,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadJobEvents returns the live events of a job in chain order, numbered from zero.
func (s *Store) LoadJobEvents(ctx context.Context, jobID string) ([]model.RawEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, event_type, address, data, event_ts,
			ROW_NUMBER() OVER (ORDER BY block_number, log_index) - 1 AS seq
		FROM job_events
		WHERE job_id = $1 AND NOT removed
		ORDER BY block_number, log_index
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job events: %w", err)
	}
	defer rows.Close()

	var events []model.RawEvent
	for rows.Next() {
		var (
			block, logIndex, ts, seq int64
			eventType                int16
			address                  string
			data                     []byte
		)
		if err := rows.Scan(&block, &logIndex, &eventType, &address, &data, &ts, &seq); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		position := uint64(seq)
		ev, err := model.RawEventRecord{
			JobID:       jobID,
			BlockNumber: uint64(block),
			LogIndex:    uint64(logIndex),
			Type:        uint8(eventType),
			Address:     address,
			Data:        hexutil.Encode(data),
			Timestamp:   uint64(ts),
			Seq:         &position,
		}.ToRawEvent()
		if err != nil {
			return nil, fmt.Errorf("job %s block %d log %d: %w", jobID, block, logIndex, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// JobsTouchedSince lists jobs with events above fromBlock and the highest such block.
func (s *Store) JobsTouchedSince(ctx context.Context, fromBlock uint64) ([]string, uint64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, MAX(block_number)
		FROM job_events
		WHERE block_number > $1
		GROUP BY job_id
		ORDER BY job_id
	`, int64(fromBlock))
	if err != nil {
		return nil, 0, fmt.Errorf("query touched jobs: %w", err)
	}
	defer rows.Close()

	var (
		jobs    []string
		highest uint64
	)
	for rows.Next() {
		var (
			jobID string
			block int64
		)
		if err := rows.Scan(&jobID, &block); err != nil {
			return nil, 0, fmt.Errorf("scan touched job: %w", err)
		}
		jobs = append(jobs, jobID)
		if uint64(block) > highest {
			highest = uint64(block)
		}
	}
	return jobs, highest, rows.Err()
}

// UpsertJobSnapshots inserts or updates materialized job snapshots.
func (s *Store) UpsertJobSnapshots(ctx context.Context, jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, job := range jobs {
		snapshot, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", job.ID, err)
		}
		batch.Queue(`
			INSERT INTO job_snapshots (job_id, state, event_count, last_event_at, snapshot, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (job_id)
			DO UPDATE SET
				state = EXCLUDED.state,
				event_count = EXCLUDED.event_count,
				last_event_at = EXCLUDED.last_event_at,
				snapshot = EXCLUDED.snapshot,
				updated_at = now()
		`,
			job.ID,
			job.State.String(),
			int64(job.EventCount),
			int64(job.JobTimes.LastEventAt),
			snapshot,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range jobs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadJobSnapshot returns the stored snapshot JSON for a job.
func (s *Store) LoadJobSnapshot(ctx context.Context, jobID string) (json.RawMessage, bool, error) {
	var snapshot []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM job_snapshots WHERE job_id=$1`, jobID)
	if err := row.Scan(&snapshot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return json.RawMessage(snapshot), true, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func decodeData(data string) ([]byte, error) {
	if data == "" || data == "0x" {
		return []byte{}, nil
	}
	decoded, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return decoded, nil
}
