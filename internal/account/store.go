package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// collection is the on-disk document shape: one JSON object keyed by
// account id.
type collection struct {
	Accounts map[string]Account `json:"accounts"`
}

// Store keeps the account collection in memory and rewrites the whole
// backing file on every mutation. Mutations are serialized behind one
// mutex, so concurrent updates to different accounts cannot interleave
// file writes (last-writer-wins never loses a sibling account).
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	accounts map[string]Account
}

// NewStore loads the collection from path. A missing file starts an
// empty collection; a present but malformed file is an error, since
// silently discarding user data is worse than refusing to start.
func NewStore(log *slog.Logger, path string) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		path:     path,
		logger:   log.With(slog.String("service", "accounts")),
		accounts: make(map[string]Account),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read account collection: %w", err)
	}
	var doc collection
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse account collection %s: %w", path, err)
	}
	if doc.Accounts != nil {
		s.accounts = doc.Accounts
	}
	return s, nil
}

// Get returns the stored account, or a default-valued account with the
// requested id when none exists. It never fails.
func (s *Store) Get(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[id]; ok {
		return acc
	}
	return New(id)
}

// Put overwrites the account record and flushes the collection. A
// failed flush rolls the in-memory record back so memory and disk
// never diverge.
func (s *Store) Put(acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.accounts[acc.ID]
	s.accounts[acc.ID] = acc
	if err := s.save(); err != nil {
		if existed {
			s.accounts[acc.ID] = prev
		} else {
			delete(s.accounts, acc.ID)
		}
		return err
	}
	return nil
}

// Delete removes the account and flushes the collection. Deleting an
// absent id is a no-op and does not touch the file. A failed flush
// restores the removed record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[id]
	if !ok {
		return nil
	}
	delete(s.accounts, id)
	if err := s.save(); err != nil {
		s.accounts[id] = prev
		return err
	}
	return nil
}

// save rewrites the whole document. Caller holds s.mu.
func (s *Store) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(collection{Accounts: s.accounts}); err != nil {
		return fmt.Errorf("encode account collection: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write account collection: %w", err)
	}
	return nil
}
