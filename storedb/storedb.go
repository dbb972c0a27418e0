// Package storedb implements the engine's MessageStore port on
// badgerhold, giving sessions a durable message log and sequence
// counters that survive restarts.
package storedb

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/timshannon/badgerhold"

	"github.com/tradewire/gofix/fix"
)

// sessionRecord is one session's counters and creation time.
type sessionRecord struct {
	Key       string `badgerhold:"key"`
	SenderSeq int
	TargetSeq int
	Created   time.Time
}

// messageRecord is one persisted outbound message.
type messageRecord struct {
	Key        string `badgerhold:"key"`
	SessionKey string `badgerholdIndex:"SessionKey"`
	Seq        int
	Raw        []byte
}

func messageKey(session string, seq int) string {
	return fmt.Sprintf("%s|%010d", session, seq)
}

// -------------------------------------------------------------------------
// Factory
// -------------------------------------------------------------------------

// Factory opens one badgerhold database and hands out per-session
// stores backed by it.
type Factory struct {
	bh *badgerhold.Store
}

// NewFactory creates or opens the database under dir.
func NewFactory(dir string) (*Factory, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	return &Factory{bh: bh}, nil
}

// Close closes the underlying database. Stores created by the factory
// must not be used afterwards.
func (f *Factory) Close() error {
	return f.bh.Close()
}

// Create implements fix.MessageStoreFactory.
func (f *Factory) Create(id fix.SessionID) (fix.MessageStore, error) {
	s := &store{bh: f.bh, key: id.String()}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// -------------------------------------------------------------------------
// Store
// -------------------------------------------------------------------------

// store is one session's view of the shared database. Counters are
// cached in memory and written through on every mutation.
type store struct {
	bh  *badgerhold.Store
	key string

	mu  sync.Mutex
	rec sessionRecord
}

// Refresh implements fix.MessageStore: it re-reads the durable counters,
// creating the record on first use.
func (s *store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec sessionRecord
	err := s.bh.Get(s.key, &rec)
	if err == badgerhold.ErrNotFound {
		rec = sessionRecord{Key: s.key, SenderSeq: 1, TargetSeq: 1, Created: time.Now()}
		if err := s.bh.Upsert(s.key, &rec); err != nil {
			return fmt.Errorf("init session record: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read session record: %w", err)
	}
	s.rec = rec
	return nil
}

func (s *store) persistLocked() error {
	if err := s.bh.Upsert(s.key, &s.rec); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}

func (s *store) Set(seq int, msg []byte) error {
	rec := messageRecord{
		Key:        messageKey(s.key, seq),
		SessionKey: s.key,
		Seq:        seq,
		Raw:        append([]byte(nil), msg...),
	}
	if err := s.bh.Upsert(rec.Key, &rec); err != nil {
		return fmt.Errorf("write message %d: %w", seq, err)
	}
	return nil
}

func (s *store) Get(begin, end int) ([][]byte, error) {
	var recs []messageRecord
	q := badgerhold.Where("SessionKey").Eq(s.key).
		And("Seq").Ge(begin).
		And("Seq").Le(end).
		SortBy("Seq")
	if err := s.bh.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("read messages %d..%d: %w", begin, end, err)
	}
	out := make([][]byte, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Raw)
	}
	return out, nil
}

func (s *store) NextSenderMsgSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.SenderSeq
}

func (s *store) NextTargetMsgSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.TargetSeq
}

func (s *store) SetNextSenderMsgSeqNum(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.SenderSeq = n
	return s.persistLocked()
}

func (s *store) SetNextTargetMsgSeqNum(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.TargetSeq = n
	return s.persistLocked()
}

func (s *store) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.SenderSeq++
	return s.persistLocked()
}

func (s *store) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.TargetSeq++
	return s.persistLocked()
}

func (s *store) CreationTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Created
}

func (s *store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bh.DeleteMatching(&messageRecord{}, badgerhold.Where("SessionKey").Eq(s.key)); err != nil {
		return fmt.Errorf("clear message log: %w", err)
	}
	s.rec = sessionRecord{Key: s.key, SenderSeq: 1, TargetSeq: 1, Created: time.Now()}
	return s.persistLocked()
}
