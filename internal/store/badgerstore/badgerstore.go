// Package badgerstore is the embedded persistence driver. It keeps the
// message log and the account directory in a single Badger database, with
// keys laid out so a prefix scan returns messages already in store order.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
	"github.com/dkoval/wirechat/internal/store"
)

const (
	msgPrefix   = "msg:"
	msgIDPrefix = "msgid:"
	usrPrefix   = "usr:"
	emailPrefix = "usremail:"
)

// Store implements store.Store on top of an embedded Badger database.
//
// Message keys are "msg:{seq}" with the sequence zero-padded to 20 digits,
// so lexicographic iteration order is sequence order. A secondary
// "msgid:{id}" key points back at the primary key and doubles as the
// uniqueness check.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	// mu makes Append a critical section: the next sequence number and
	// the duplicate check must be decided atomically.
	mu      sync.Mutex
	lastSeq int64
}

type storedMessage struct {
	Seq         int64     `json:"seq"`
	MessageID   string    `json:"message_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

type storedUser struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	CreatedAt      time.Time `json:"created_at"`
}

// Open opens (or creates) the database at path and recovers the last
// assigned sequence number.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", path, err)
	}

	s := &Store{db: db, log: log}
	if err := s.recoverLastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// recoverLastSeq seeks to the highest message key. The key layout makes
// that a single reverse iteration step.
func (s *Store) recoverLastSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek just past the last possible message key, then step back.
		it.Seek([]byte(msgPrefix + "99999999999999999999"))
		if !it.ValidForPrefix([]byte(msgPrefix)) {
			return nil
		}

		var rec storedMessage
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return fmt.Errorf("badgerstore: corrupt tail record: %w", err)
		}
		s.lastSeq = rec.Seq
		return nil
	})
}

func msgKey(seq int64) []byte {
	return fmt.Appendf(nil, "%s%020d", msgPrefix, seq)
}

func (s *Store) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idKey := []byte(msgIDPrefix + msg.MessageID)
	seq := s.lastSeq + 1

	rec := storedMessage{
		Seq:        seq,
		MessageID:  msg.MessageID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
	}
	if msg.RecipientID != nil {
		rec.RecipientID = msg.RecipientID.String()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(idKey)
		if err == nil {
			return store.ErrDuplicateID
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(seq), val); err != nil {
			return err
		}
		return txn.Set(idKey, msgKey(seq))
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return store.ErrDuplicateID
		}
		return fmt.Errorf("badgerstore: append: %w", err)
	}

	s.lastSeq = seq
	msg.Seq = seq
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]model.Message, error) {
	return s.list(func(storedMessage) bool { return true })
}

func (s *Store) ListFor(ctx context.Context, identityID uuid.UUID) ([]model.Message, error) {
	id := identityID.String()
	return s.list(func(rec storedMessage) bool {
		return rec.SenderID == identityID || rec.RecipientID == id
	})
}

func (s *Store) list(keep func(storedMessage) bool) ([]model.Message, error) {
	var out []model.Message

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(msgPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec storedMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if !keep(rec) {
				continue
			}
			msg, err := toModel(rec)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list: %w", err)
	}

	return out, nil
}

func (s *Store) GetByMessageID(ctx context.Context, messageID string) (model.Message, error) {
	var rec storedMessage

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(msgIDPrefix + messageID))
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Message{}, store.ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("badgerstore: get %s: %w", messageID, err)
	}

	return toModel(rec)
}

func toModel(rec storedMessage) (model.Message, error) {
	msg := model.Message{
		Seq:        rec.Seq,
		MessageID:  rec.MessageID,
		SenderID:   rec.SenderID,
		SenderName: rec.SenderName,
		Content:    rec.Content,
		Timestamp:  rec.Timestamp,
	}
	if rec.RecipientID != "" {
		id, err := uuid.Parse(rec.RecipientID)
		if err != nil {
			return model.Message{}, fmt.Errorf("badgerstore: corrupt recipient id %q: %w", rec.RecipientID, err)
		}
		msg.RecipientID = &id
	}
	return msg, nil
}

func (s *Store) CreateUser(ctx context.Context, user store.User) error {
	emailKey := []byte(emailPrefix + user.Email)

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(emailKey)
		if err == nil {
			return store.ErrDuplicateID
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		val, err := json.Marshal(storedUser(user))
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(usrPrefix+user.ID.String()), val); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID.String()))
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return store.ErrDuplicateID
		}
		return fmt.Errorf("badgerstore: create user: %w", err)
	}

	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (store.User, error) {
	return s.getUser([]byte(usrPrefix + id.String()))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	var primary []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(emailPrefix + email))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		primary = append([]byte(usrPrefix), id...)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("badgerstore: get user by email: %w", err)
	}

	return s.getUser(primary)
}

func (s *Store) getUser(key []byte) (store.User, error) {
	var rec storedUser

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("badgerstore: get user: %w", err)
	}

	return store.User(rec), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	var out []store.User

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(usrPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec storedUser
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, store.User(rec))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list users: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
