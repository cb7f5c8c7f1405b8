package progress

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

// DefaultBucket is the JetStream key-value bucket used for progress.
const DefaultBucket = "linkscan_progress"

// keyValue is the subset of jetstream.KeyValue used by KVTracker.
type keyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// KVTracker stores snapshots in a NATS JetStream key-value bucket so
// several processes can poll the same scan. Merges use the entry revision
// for optimistic concurrency.
type KVTracker struct {
	kv         keyValue
	maxRetries int
	now        func() time.Time
}

// NewKVTracker wraps a bucket.
func NewKVTracker(kv jetstream.KeyValue) *KVTracker {
	return newKVTracker(kv)
}

func newKVTracker(kv keyValue) *KVTracker {
	return &KVTracker{kv: kv, maxRetries: 5, now: time.Now}
}

func key(id model.ScanID) string {
	return "scan." + strconv.FormatInt(int64(id), 10)
}

func (t *KVTracker) Reset(ctx context.Context, snap Snapshot) error {
	snap.UpdatedAt = t.now()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if _, err := t.kv.Put(ctx, key(snap.ScanID), data); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

func (t *KVTracker) Merge(ctx context.Context, id model.ScanID, u Update) error {
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		prev, rev, err := t.load(ctx, id)
		if err != nil && !stderrors.Is(err, ErrNoScanInProgress) {
			return err
		}
		next := prev.Apply(u)
		next.ScanID = id
		next.UpdatedAt = t.now()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		if rev == 0 {
			_, err = t.kv.Create(ctx, key(id), data)
		} else {
			_, err = t.kv.Update(ctx, key(id), data, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("store progress: %w", err)
		}
	}
	return fmt.Errorf("store progress: too many concurrent updates for scan %d", id)
}

func (t *KVTracker) Get(ctx context.Context, id model.ScanID) (Snapshot, error) {
	snap, _, err := t.load(ctx, id)
	return snap, err
}

func (t *KVTracker) Clear(ctx context.Context, id model.ScanID) error {
	err := t.kv.Delete(ctx, key(id))
	if err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

func (t *KVTracker) load(ctx context.Context, id model.ScanID) (Snapshot, uint64, error) {
	entry, err := t.kv.Get(ctx, key(id))
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return Snapshot{}, 0, ErrNoScanInProgress
	}
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("load progress: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return Snapshot{}, 0, fmt.Errorf("decode progress: %w", err)
	}
	return snap, entry.Revision(), nil
}

// isConflict reports a lost optimistic-concurrency race.
func isConflict(err error) bool {
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return stderrors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
