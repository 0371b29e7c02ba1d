package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 16

// CreateJob stores the record as a Hash and adds it to the id index.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	jID := r.ID.String()
	key := s.keys.job(jID)

	txf := func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("jobrunner/redis: create check exists: %w", err)
		}
		if exists > 0 {
			return jobrunner.ErrJobAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, recordToMap(r))
			pipe.SAdd(ctx, s.keys.index(), jID)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		if errors.Is(err, jobrunner.ErrJobAlreadyExists) {
			return err
		}
		return fmt.Errorf("jobrunner/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.job(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobrunner/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobrunner.ErrJobNotFound
	}
	return mapToRecord(vals)
}

// UpdateJob applies u inside an optimistic transaction on the record key.
// The write is discarded when the record vanished or changed status since
// it was read, and the read is retried.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, u job.Update) error {
	key := s.keys.job(jobID.String())

	txf := func(tx *goredis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "status", "updated_ts").Result()
		if err != nil {
			return fmt.Errorf("jobrunner/redis: update read: %w", err)
		}
		status, ok := vals[0].(string)
		if !ok {
			return jobrunner.ErrJobNotFound
		}
		if !job.Status(status).CanTransition(u.Status) {
			return jobrunner.ErrInvalidState
		}

		at := u.At.UTC()
		if prev, ok := vals[1].(string); ok {
			if t, perr := time.Parse(time.RFC3339Nano, prev); perr == nil && t.After(at) {
				at = t
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"status", string(u.Status),
				"updated_ts", at.Format(time.RFC3339Nano),
			)
			switch u.Status {
			case job.StatusFinished:
				pipe.HDel(ctx, key, "error")
				if u.Result != nil {
					pipe.HSet(ctx, key, "result", string(u.Result))
				} else {
					pipe.HDel(ctx, key, "result")
				}
			case job.StatusFailed:
				pipe.HDel(ctx, key, "result")
				pipe.HSet(ctx, key, "error", u.Error)
			}
			return nil
		})
		return err
	}

	err := s.watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobrunner.ErrJobNotFound), errors.Is(err, jobrunner.ErrInvalidState):
		return err
	default:
		return fmt.Errorf("jobrunner/redis: update job: %w", err)
	}
}

// DeleteJob removes a record and its index entry.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) (bool, error) {
	jID := jobID.String()

	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.keys.job(jID))
		pipe.SRem(ctx, s.keys.index(), jID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("jobrunner/redis: delete job: %w", err)
	}
	return del.Val() > 0, nil
}

// ListJobIDs returns every id in the index. Entries that do not parse are
// removed from the index.
func (s *Store) ListJobIDs(ctx context.Context) ([]id.JobID, error) {
	members, err := s.client.SMembers(ctx, s.keys.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("jobrunner/redis: list job ids: %w", err)
	}

	ids := make([]id.JobID, 0, len(members))
	for _, m := range members {
		jobID, perr := id.Parse(m)
		if perr != nil {
			s.logger.Warn("jobrunner/redis: dropping malformed index entry",
				"entry", m,
				"error", perr.Error(),
			)
			s.client.SRem(ctx, s.keys.index(), m)
			continue
		}
		ids = append(ids, jobID)
	}
	return ids, nil
}

// watch runs txf under WATCH, retrying when a concurrent writer touched
// the watched keys.
func (s *Store) watch(ctx context.Context, txf func(*goredis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return goredis.TxFailedErr
}

// ── helpers ──

func recordToMap(r *job.Record) map[string]interface{} {
	m := map[string]interface{}{
		"id":         r.ID.String(),
		"kind":       r.Kind,
		"status":     string(r.Status),
		"created_ts": r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_ts": r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"work_dir":   r.WorkDir,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Result != nil {
		m["result"] = string(r.Result)
	}
	return m
}

func mapToRecord(m map[string]string) (*job.Record, error) {
	jID, err := id.Parse(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobrunner/redis: parse job id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_ts"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_ts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := &job.Record{
		ID:        jID,
		Kind:      m["kind"],
		Status:    job.Status(m["status"]),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		WorkDir:   m["work_dir"],
		Error:     m["error"],
	}
	if v, ok := m["result"]; ok {
		r.Result = []byte(v)
	}
	return r, nil
}
