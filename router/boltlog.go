package router

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/aymanhalloween/smartcard/router/models"
)

const decisionsBucket = "decisions"

// BoltLog is a single-file DecisionLog for single-node deployments where no
// external database is available. Records are keyed by authorization id;
// inserting an existing key is rejected, which gives the same uniqueness
// guarantee as the Postgres primary key.
type BoltLog struct {
	db *bolt.DB
}

var _ DecisionLog = (*BoltLog)(nil)

// NewBoltLog opens (or creates) the database file and ensures the decisions
// bucket exists.
func NewBoltLog(path string) (*BoltLog, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(decisionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltLog{db: db}, nil
}

func (l *BoltLog) Append(ctx context.Context, decision *models.RoutingDecision) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		key := []byte(decision.AuthorizationID)
		if b.Get(key) != nil {
			return ErrDuplicateDecision
		}
		data, err := json.Marshal(decision)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (l *BoltLog) List(ctx context.Context, limit int) ([]*models.RoutingDecision, error) {
	var items []*models.RoutingDecision
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		return b.ForEach(func(k, v []byte) error {
			var d models.RoutingDecision
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			items = append(items, &d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Bucket iteration is ordered by key; callers want newest first.
	sort.Slice(items, func(i, j int) bool {
		return items[i].DecidedAt.After(items[j].DecidedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (l *BoltLog) Get(ctx context.Context, authorizationID string) (*models.RoutingDecision, error) {
	var d models.RoutingDecision
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		v := b.Get([]byte(authorizationID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (l *BoltLog) Ping(ctx context.Context) error {
	return nil
}

func (l *BoltLog) Close() error {
	return l.db.Close()
}
