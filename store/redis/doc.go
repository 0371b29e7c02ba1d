// Package redis implements store.Store on Redis so that any number of
// worker processes can share job records.
//
// Each record is a Hash at {prefix}job:{id} with the fields id, kind,
// status, created_ts, updated_ts, work_dir and, once terminal, error or
// result. A Set at {prefix}jobs indexes every id for enumeration.
// Timestamps are RFC 3339 strings with nanoseconds; result holds raw JSON.
//
// Status transitions run inside WATCH/MULTI on the record key, so two
// workers racing to claim the same job cannot both win.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client, redisstore.WithKeyPrefix("jobrunner:"))
//	if err := s.Ping(ctx); err != nil { ... }
package redis
