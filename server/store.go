package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	// ErrWishNotFound means the board exists but the wish does not. Wish
	// lookups resolve both under the board lock, so callers can tell the
	// cases apart without a racy pre-check.
	ErrWishNotFound = errors.New("wish not found")
)

// backend persists the whole document. save receives a private snapshot
// and must replace the stored document atomically.
type backend interface {
	load() (*Document, error)
	save(doc *Document) error
}

// Store owns the board document. The in-memory copy is authoritative
// after Load; every mutation commits in memory under the target board's
// lock, persists a snapshot, and publishes its event before the lock is
// released, so events on a board's channel follow commit order.
type Store struct {
	log     *slog.Logger
	backend backend
	bus     *EventBus

	mu  sync.RWMutex
	doc *Document

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	saveMu sync.Mutex
}

func NewStore(b backend, bus *EventBus, log *slog.Logger) *Store {
	return &Store{log: log, backend: b, bus: bus, doc: &Document{Lists: []Board{}}, locks: map[string]*sync.Mutex{}}
}

// Load reads the persisted document and normalizes every board for
// backward compatibility with older documents.
func (s *Store) Load() error {
	doc, err := s.backend.load()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.Lists == nil {
		doc.Lists = []Board{}
	}
	for i := range doc.Lists {
		normalizeBoard(&doc.Lists[i], now)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// boardLock returns the serialization mutex for a board code, creating
// it on first use.
func (s *Store) boardLock(code string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

// persist writes a snapshot of the current document. Snapshots are taken
// under the save lock, so a stale snapshot can never overwrite a newer
// one.
func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	snap := &Document{Lists: make([]Board, len(s.doc.Lists))}
	for i := range s.doc.Lists {
		snap.Lists[i] = cloneBoard(s.doc.Lists[i])
	}
	s.mu.RUnlock()
	return s.backend.save(snap)
}

// findBoard returns a pointer into the document; callers must hold s.mu.
func (s *Store) findBoard(code string) *Board {
	for i := range s.doc.Lists {
		if s.doc.Lists[i].Code == code {
			return &s.doc.Lists[i]
		}
	}
	return nil
}

// BoardsByOwner lists boards whose owner matches case-insensitively.
func (s *Store) BoardsByOwner(owner string) []Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Board{}
	for i := range s.doc.Lists {
		if s.doc.Lists[i].OwnedBy(owner) {
			out = append(out, cloneBoard(s.doc.Lists[i]))
		}
	}
	return out
}

func (s *Store) BoardByCode(code string) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.findBoard(code)
	if b == nil {
		return Board{}, ErrNotFound
	}
	return cloneBoard(*b), nil
}

// CreateBoard adds a board. A requested code is honored only when free;
// otherwise a unique slug is derived from the title.
func (s *Store) CreateBoard(title, owner, code, description string) (Board, error) {
	s.mu.Lock()
	codes := make(map[string]bool, len(s.doc.Lists))
	for i := range s.doc.Lists {
		codes[s.doc.Lists[i].Code] = true
	}
	if code == "" || codes[code] {
		code = uniqueCode(title, codes)
	}
	b := Board{
		ID:          uuid.NewString(),
		Title:       title,
		Code:        code,
		Owner:       owner,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Wishes:      []Wish{},
	}
	s.doc.Lists = append(s.doc.Lists, b)
	s.mu.Unlock()
	if err := s.persist(); err != nil {
		return Board{}, err
	}
	return cloneBoard(b), nil
}

// UpdateBoard renames or re-describes a board; only the owner may do so.
func (s *Store) UpdateBoard(code, ownerName string, title, description *string) (Board, error) {
	lock := s.boardLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	b := s.findBoard(code)
	if b == nil {
		s.mu.Unlock()
		return Board{}, ErrNotFound
	}
	if !b.OwnedBy(ownerName) {
		s.mu.Unlock()
		return Board{}, ErrForbidden
	}
	if title != nil && *title != "" {
		b.Title = *title
	}
	if description != nil {
		b.Description = *description
	}
	out := cloneBoard(*b)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return Board{}, err
	}
	s.bus.Publish(Event{Type: EventListUpdate, Code: code})
	return out, nil
}

// DeleteBoard removes a board and all its wishes; only the owner may.
func (s *Store) DeleteBoard(code, ownerName string) error {
	lock := s.boardLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	idx := -1
	for i := range s.doc.Lists {
		if s.doc.Lists[i].Code == code {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !s.doc.Lists[idx].OwnedBy(ownerName) {
		s.mu.Unlock()
		return ErrForbidden
	}
	s.doc.Lists = append(s.doc.Lists[:idx], s.doc.Lists[idx+1:]...)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventListDelete, Code: code})
	return nil
}

// AddWish appends a wish to a board and publishes it.
func (s *Store) AddWish(code string, w Wish) (Wish, error) {
	lock := s.boardLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	b := s.findBoard(code)
	if b == nil {
		s.mu.Unlock()
		return Wish{}, ErrNotFound
	}
	b.Wishes = append(b.Wishes, w)
	out := cloneWish(w)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return Wish{}, err
	}
	s.bus.Publish(Event{Type: EventWishAdd, Code: code, Wish: &out})
	return out, nil
}

// MutateWish applies fn to a wish inside the board's serialization
// scope. fn reports whether it changed anything; an unchanged wish is
// neither persisted nor published. fn must leave the wish untouched when
// it returns an error.
func (s *Store) MutateWish(code, wishID string, fn func(*Wish) (bool, error)) (Wish, error) {
	lock := s.boardLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	b := s.findBoard(code)
	if b == nil {
		s.mu.Unlock()
		return Wish{}, ErrNotFound
	}
	var w *Wish
	for i := range b.Wishes {
		if b.Wishes[i].ID == wishID {
			w = &b.Wishes[i]
			break
		}
	}
	if w == nil {
		s.mu.Unlock()
		return Wish{}, ErrWishNotFound
	}
	changed, err := fn(w)
	if err != nil {
		s.mu.Unlock()
		return Wish{}, err
	}
	out := cloneWish(*w)
	s.mu.Unlock()

	if !changed {
		return out, nil
	}
	if err := s.persist(); err != nil {
		return Wish{}, err
	}
	s.bus.Publish(Event{Type: EventWishUpdate, Code: code, Wish: &out})
	return out, nil
}

// DeleteWish removes a wish from a board.
func (s *Store) DeleteWish(code, wishID string) error {
	lock := s.boardLock(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	b := s.findBoard(code)
	if b == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	idx := -1
	for i := range b.Wishes {
		if b.Wishes[i].ID == wishID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return ErrWishNotFound
	}
	b.Wishes = append(b.Wishes[:idx], b.Wishes[idx+1:]...)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.bus.Publish(Event{Type: EventWishDelete, Code: code, WishID: wishID})
	return nil
}

func cloneWish(w Wish) Wish {
	out := w
	out.Reservations = append([]Reservation{}, w.Reservations...)
	if w.Price != nil {
		v := *w.Price
		out.Price = &v
	}
	if w.TickedBy != nil {
		v := *w.TickedBy
		out.TickedBy = &v
	}
	if w.TickedAt != nil {
		v := *w.TickedAt
		out.TickedAt = &v
	}
	return out
}

func cloneBoard(b Board) Board {
	out := b
	out.Wishes = make([]Wish, len(b.Wishes))
	for i := range b.Wishes {
		out.Wishes[i] = cloneWish(b.Wishes[i])
	}
	return out
}

// fileBackend stores the document as pretty-printed JSON, written to a
// temp file and renamed over data.json so readers never see a partial
// write.
type fileBackend struct {
	dir  string
	path string
}

func newFileBackend(dir string) *fileBackend {
	return &fileBackend{dir: dir, path: filepath.Join(dir, "data.json")}
}

func (f *fileBackend) load() (*Document, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Document{Lists: []Board{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return &doc, nil
}

func (f *fileBackend) save(doc *Document) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "data-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
