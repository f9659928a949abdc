package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	bolt "go.etcd.io/bbolt"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/metrics"
)

const defaultCheckpointBucket = "checkpoints"

// BoltCheckpointStore keeps checkpoints in a local bbolt file, one key per
// node holding an 8 byte big-endian block number.
type BoltCheckpointStore struct {
	db     *bolt.DB
	log    applog.AppLogger
	bucket []byte
	rewind uint64
}

func NewBoltCheckpointStore(log applog.AppLogger, cfg *BoltConfig, v *validator.Validate) (*BoltCheckpointStore, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid bolt config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid bolt config", err)
	}

	timeout := time.Second
	if cfg.OpenTimeoutMS > 0 {
		timeout = time.Duration(cfg.OpenTimeoutMS) * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, apperr.NewCheckpointErr(fmt.Sprintf("failed to create directory for %s", cfg.Path), err)
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, apperr.NewCheckpointErr(fmt.Sprintf("failed to open %s", cfg.Path), err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultCheckpointBucket
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, apperr.NewCheckpointErr("failed to create checkpoint bucket", err)
	}

	return &BoltCheckpointStore{db: db, log: log, bucket: []byte(bucket), rewind: cfg.RewindBlocks}, nil
}

func (s *BoltCheckpointStore) GetStartPosition(nodeName string) (uint64, bool) {
	var (
		number uint64
		found  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(nodeName))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt checkpoint value of %d bytes", len(v))
		}
		number, found = binary.BigEndian.Uint64(v), true
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to read checkpoint, following head instead", "node", nodeName, "err", err)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentBolt, "checkpoint_read").Inc()
		return 0, false
	}
	if !found {
		return 0, false
	}
	return rewind(number, s.rewind), true
}

func (s *BoltCheckpointStore) SaveCheckpoint(_ context.Context, nodeName string, number uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		key := []byte(nodeName)
		if cur := b.Get(key); len(cur) == 8 && binary.BigEndian.Uint64(cur) >= number {
			return nil
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], number)
		return b.Put(key, buf[:])
	})
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentBolt, "checkpoint_write").Inc()
		return apperr.NewCheckpointErr(fmt.Sprintf("failed to save checkpoint %d for node %s", number, nodeName), err)
	}
	return nil
}

func (s *BoltCheckpointStore) Close() error {
	return s.db.Close()
}

var _ port.CheckpointStore = (*BoltCheckpointStore)(nil)
