// Package history journals evaluation results per session in a key-value
// store so they can be listed after the process exits.
package history

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/storage/store"
	"github.com/nova-lang/nova/pkg/storage/store/bg"
	"github.com/nova-lang/nova/pkg/stream"
	"go.uber.org/zap"
)

var (
	sessionPrefix = []byte("ses/")
	resultPrefix  = []byte("res/")
)

type Session struct {
	ID      uuid.UUID `cbor:"1,keyasint"`
	Started time.Time `cbor:"2,keyasint"`
	Source  string    `cbor:"3,keyasint,omitempty"`
}

type History struct {
	db  store.DB
	log *zap.Logger
}

// Open opens the journal stored in dir.
func Open(dir string, log *zap.Logger) (*History, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := bg.New(dir, log.Named("badger"))
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dir, err)
	}
	return New(db, log), nil
}

func New(db store.DB, log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{db: db, log: log}
}

func (h *History) Close() error {
	return h.db.Close()
}

func sessionKey(id uuid.UUID) []byte {
	return append(append([]byte{}, sessionPrefix...), id.Bytes()...)
}

func resultKey(id uuid.UUID, seq uint64) []byte {
	k := append(append([]byte{}, resultPrefix...), id.Bytes()...)
	return binary.BigEndian.AppendUint64(k, seq)
}

// Begin registers a session and returns the handler that journals its
// results. source describes where the input came from.
func (h *History) Begin(id uuid.UUID, source string) (*Journal, error) {
	data, err := cbor.Marshal(Session{ID: id, Started: time.Now().UTC(), Source: source})
	if err != nil {
		return nil, err
	}
	if err := h.db.Set(sessionKey(id), data); err != nil {
		return nil, err
	}
	return &Journal{h: h, id: id}, nil
}

// Sessions lists every recorded session in key order.
func (h *History) Sessions() ([]Session, error) {
	itr := h.db.NewIterator(sessionPrefix, nil)
	defer itr.Release()

	var ss []Session
	for itr.Next() {
		var s Session
		if err := cbor.Unmarshal(itr.Value(), &s); err != nil {
			return nil, fmt.Errorf("session %x: %w", itr.Key(), err)
		}
		ss = append(ss, s)
	}
	return ss, itr.Error()
}

// Results returns the results of a session ordered by sequence number.
func (h *History) Results(id uuid.UUID) ([]stream.Record, error) {
	prefix := append(append([]byte{}, resultPrefix...), id.Bytes()...)
	itr := h.db.NewIterator(prefix, nil)
	defer itr.Release()

	var rs []stream.Record
	for itr.Next() {
		rec, err := stream.UnmarshalRecord(itr.Value())
		if err != nil {
			return nil, fmt.Errorf("result %x: %w", itr.Key(), err)
		}
		rs = append(rs, rec)
	}
	return rs, itr.Error()
}

// Journal records the results of one session.
type Journal struct {
	h  *History
	id uuid.UUID
}

func (j *Journal) HandleResult(r evaluator.Result) error {
	data, err := stream.MarshalRecord(r)
	if err != nil {
		return err
	}
	if err := j.h.db.Set(resultKey(j.id, r.Seq), data); err != nil {
		j.h.log.Error("journal write failed", zap.Stringer("session", j.id), zap.Uint64("seq", r.Seq), zap.Error(err))
		return err
	}
	return nil
}
