package main

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// Ensure the journals implement MutationJournal.
var (
	_ MutationJournal = (*boltJournal)(nil)
	_ MutationJournal = (*noopJournal)(nil)
)

// MutationKind names a successful write sent to the remote api.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
	MutationBorrow MutationKind = "borrow"
)

// Mutation is one journal record.
type Mutation struct {
	ID        string       `json:"id"`
	Kind      MutationKind `json:"kind"`
	BookID    string       `json:"bookId"`
	Tags      []Tag        `json:"tags"`
	RequestID string       `json:"requestId,omitempty"`
	Message   string       `json:"message,omitempty"`
	At        time.Time    `json:"at"`
}

// MutationJournal keeps a local trace of the mutations issued by this front.
type MutationJournal interface {
	Record(ctx context.Context, m Mutation) error
	// List returns at most limit mutations, newest first.
	List(ctx context.Context, limit int) ([]Mutation, error)
	Close() error
}

type boltJournal struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BoltDB.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BoltDB.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltJournal provides an instance of bolt-based mutation journal.
func NewBoltJournal(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) MutationJournal {
	return &boltJournal{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// journalKey orders records by time then id.
func journalKey(m Mutation) []byte {
	return []byte(fmt.Sprintf("%020d|%s", m.At.UnixNano(), m.ID))
}

// Record appends a mutation to the journal.
func (bj *boltJournal) Record(_ context.Context, m Mutation) error {
	data, err := jsonCodec.Marshal(m)
	if err != nil {
		return err
	}
	return bj.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bj.config.BucketName)).Put(journalKey(m), data)
	})
}

// List walks the bucket backward from the most recent record.
func (bj *boltJournal) List(_ context.Context, limit int) ([]Mutation, error) {
	tx, err := bj.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := tx.Bucket([]byte(bj.config.BucketName)).Cursor()

	mutations := []Mutation{}
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if limit > 0 && len(mutations) >= limit {
			break
		}
		var m Mutation
		if err = jsonCodec.Unmarshal(v, &m); err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, nil
}

// Close shuts down the bolt-based journal.
func (bj *boltJournal) Close() error {
	return bj.client.Close()
}

type noopJournal struct{}

// NewNoopJournal provides a journal which keeps nothing.
func NewNoopJournal() MutationJournal {
	return &noopJournal{}
}

func (*noopJournal) Record(context.Context, Mutation) error {
	return nil
}

func (*noopJournal) List(context.Context, int) ([]Mutation, error) {
	return []Mutation{}, nil
}

func (*noopJournal) Close() error {
	return nil
}
