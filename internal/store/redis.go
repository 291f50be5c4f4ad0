package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStatus keeps a job's scalar fields in the hash chunkjob:<id> and
// its chunks, one JSON document each, in the list chunkjob:<id>:chunks.
// Both keys expire ttl after the last write.
type RedisStatus struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStatus{rdb: rdb, ttl: ttl}, nil
}

func jobKey(id string) string    { return "chunkjob:" + id }
func chunksKey(id string) string { return "chunkjob:" + id + ":chunks" }

func (s *RedisStatus) expire(ctx context.Context, pipe redis.Pipeliner, id string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, jobKey(id), s.ttl)
		pipe.Expire(ctx, chunksKey(id), s.ttl)
	}
}

func (s *RedisStatus) Save(ctx context.Context, jobID string, j Job) error {
	h, err := toHash(j)
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(h))
	for k, v := range h {
		fields[k] = v
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(jobID), fields)
		s.expire(ctx, pipe, jobID)
		return nil
	})
	return err
}

func (s *RedisStatus) AddChunk(ctx context.Context, jobID string, c ChunkRecord) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chunksKey(jobID), b)
		s.expire(ctx, pipe, jobID)
		return nil
	})
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Job, bool, error) {
	var (
		hash   *redis.MapStringStringCmd
		chunks *redis.StringSliceCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hash = pipe.HGetAll(ctx, jobKey(jobID))
		chunks = pipe.LRange(ctx, chunksKey(jobID), 0, -1)
		return nil
	})
	if err != nil {
		return Job{}, false, err
	}
	if len(hash.Val()) == 0 {
		return Job{}, false, nil
	}
	j := fromHash(hash.Val())
	for _, raw := range chunks.Val() {
		var c ChunkRecord
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Job{}, false, fmt.Errorf("job %s chunk record: %w", jobID, err)
		}
		j.Chunks = append(j.Chunks, c)
	}
	return j, true, nil
}

func (s *RedisStatus) Close() error { return s.rdb.Close() }

func toHash(j Job) (map[string]string, error) {
	warnings, err := json.Marshal(j.Warnings)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"state":         string(j.State),
		"message":       j.Message,
		"input":         j.Input,
		"output_prefix": j.OutputPrefix,
		"pages":         strconv.Itoa(j.Pages),
		"progress":      strconv.Itoa(j.Progress),
		"warnings":      string(warnings),
		"start":         formatTime(j.Start),
		"end":           formatTime(j.End),
	}, nil
}

func fromHash(h map[string]string) Job {
	j := Job{
		State:        State(h["state"]),
		Message:      h["message"],
		Input:        h["input"],
		OutputPrefix: h["output_prefix"],
		Start:        parseTime(h["start"]),
		End:          parseTime(h["end"]),
	}
	j.Pages, _ = strconv.Atoi(h["pages"])
	j.Progress, _ = strconv.Atoi(h["progress"])
	if w := h["warnings"]; w != "" {
		_ = json.Unmarshal([]byte(w), &j.Warnings)
	}
	return j
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
