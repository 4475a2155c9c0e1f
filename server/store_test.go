package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(newFileBackend(t.TempDir()), NewEventBus(), testLogger())
	require.NoError(t, s.Load())
	return s
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(newFileBackend(dir), NewEventBus(), testLogger())
	require.NoError(t, s.Load())

	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "for the family")
	require.NoError(t, err)
	assert.Equal(t, "winter-gifts", b.Code)
	_, err = s.AddWish(b.Code, Wish{ID: "w1", Title: "Socks", Quantity: 2, Priority: PriorityHigh, Reservations: []Reservation{}})
	require.NoError(t, err)

	// no temp files left behind after the rename save
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())

	reloaded := NewStore(newFileBackend(dir), NewEventBus(), testLogger())
	require.NoError(t, reloaded.Load())
	got, err := reloaded.BoardByCode("winter-gifts")
	require.NoError(t, err)
	assert.Equal(t, "Winter Gifts", got.Title)
	require.Len(t, got.Wishes, 1)
	assert.Equal(t, "Socks", got.Wishes[0].Title)
	assert.Equal(t, 2, got.Wishes[0].Quantity)
}

func TestLoadNormalizesLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "lists": [
    {
      "id": "b1",
      "title": "Old Board",
      "code": "old-board",
      "owner": "Alice",
      "wishes": [
        {
          "id": "w1",
          "title": "Legacy wish",
          "ticked": true,
          "tickedBy": "Bob",
          "tickedAt": "2023-05-01T10:00:00Z"
        }
      ]
    }
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(legacy), 0o644))

	s := NewStore(newFileBackend(dir), NewEventBus(), testLogger())
	require.NoError(t, s.Load())

	b, err := s.BoardByCode("old-board")
	require.NoError(t, err)
	require.Len(t, b.Wishes, 1)
	w := b.Wishes[0]
	require.Len(t, w.Reservations, 1)
	assert.Equal(t, "Bob", w.Reservations[0].UserName)
	assert.Equal(t, 1, w.Quantity)
	assert.Equal(t, 1, w.ReservedCount)
	assert.True(t, w.Ticked)
	assert.Equal(t, PriorityMedium, w.Priority)
}

func TestBoardsByOwnerCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)
	_, err = s.CreateBoard("Other", "Bob", "", "")
	require.NoError(t, err)

	for _, name := range []string{"alice", "ALICE", "Alice"} {
		boards := s.BoardsByOwner(name)
		require.Len(t, boards, 1, name)
		assert.Equal(t, "Winter Gifts", boards[0].Title)
	}
	assert.Empty(t, s.BoardsByOwner("Ali"))
}

func TestCreateBoardCodeCollision(t *testing.T) {
	s := newTestStore(t)
	b1, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)
	b2, err := s.CreateBoard("Winter Gifts", "Bob", "", "")
	require.NoError(t, err)
	b3, err := s.CreateBoard("Third", "Carol", "winter-gifts", "")
	require.NoError(t, err)

	assert.Equal(t, "winter-gifts", b1.Code)
	assert.Equal(t, "winter-gifts-1", b2.Code)
	// requested code is taken, so one is derived from the title
	assert.Equal(t, "third", b3.Code)

	b4, err := s.CreateBoard("Anything", "Dana", "my-code", "")
	require.NoError(t, err)
	assert.Equal(t, "my-code", b4.Code)
}

func TestUpdateBoardOwnerGate(t *testing.T) {
	s := newTestStore(t)
	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)

	title := "Renamed"
	_, err = s.UpdateBoard(b.Code, "Mallory", &title, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := s.UpdateBoard(b.Code, "ALICE", &title, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	_, err = s.UpdateBoard("missing", "Alice", &title, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBoardCascades(t *testing.T) {
	s := newTestStore(t)
	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)
	_, err = s.AddWish(b.Code, Wish{ID: "w1", Title: "Socks", Quantity: 1, Reservations: []Reservation{}})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteBoard(b.Code, "Bob"), ErrForbidden)
	require.NoError(t, s.DeleteBoard(b.Code, "alice"))

	_, err = s.BoardByCode(b.Code)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBoard(b.Code, "alice"), ErrNotFound)
}

func TestMutateWishNotFound(t *testing.T) {
	s := newTestStore(t)
	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)

	// a missing wish and a missing board are distinct failures
	_, err = s.MutateWish(b.Code, "nope", func(w *Wish) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrWishNotFound)
	_, err = s.MutateWish("missing", "w1", func(w *Wish) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteWish(b.Code, "nope"), ErrWishNotFound)
	assert.ErrorIs(t, s.DeleteWish("missing", "w1"), ErrNotFound)
}

func TestConcurrentClaimsNeverOvercommit(t *testing.T) {
	const attempts = 16
	const quantity = 3

	s := newTestStore(t)
	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)
	w := Wish{ID: "w1", Title: "Lego", Quantity: quantity, Reservations: []Reservation{}}
	w.recompute()
	_, err = s.AddWish(b.Code, w)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.MutateWish(b.Code, "w1", func(wi *Wish) (bool, error) {
				if err := wi.Claim("user", time.Now().UTC()); err != nil {
					return false, err
				}
				return true, nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrCapacityExceeded)
			full++
		}
	}
	assert.Equal(t, quantity, ok)
	assert.Equal(t, attempts-quantity, full)

	got, err := s.BoardByCode(b.Code)
	require.NoError(t, err)
	require.Len(t, got.Wishes, 1)
	assert.Equal(t, quantity, got.Wishes[0].ReservedCount)
	assert.LessOrEqual(t, len(got.Wishes[0].Reservations), got.Wishes[0].Quantity)
}

func TestReadsReturnCopies(t *testing.T) {
	s := newTestStore(t)
	b, err := s.CreateBoard("Winter Gifts", "Alice", "", "")
	require.NoError(t, err)
	_, err = s.AddWish(b.Code, Wish{ID: "w1", Title: "Socks", Quantity: 1, Reservations: []Reservation{}})
	require.NoError(t, err)

	got, err := s.BoardByCode(b.Code)
	require.NoError(t, err)
	got.Wishes[0].Title = "Tampered"

	again, err := s.BoardByCode(b.Code)
	require.NoError(t, err)
	assert.Equal(t, "Socks", again.Wishes[0].Title)
}
