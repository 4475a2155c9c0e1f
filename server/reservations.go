package main

import (
	"errors"
	"time"
)

var (
	// ErrCapacityExceeded is returned by Claim when every unit of the
	// wish is already reserved.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrNotReserved is returned by Release when the user holds no
	// reservation on the wish.
	ErrNotReserved = errors.New("not reserved")
)

// Claim appends a reservation for userName. It fails with
// ErrCapacityExceeded when the reservation log is already at quantity;
// on success the log grows by exactly one entry. The same user may hold
// several reservations on a multi-quantity wish.
func (w *Wish) Claim(userName string, at time.Time) error {
	if len(w.Reservations) >= w.Quantity {
		return ErrCapacityExceeded
	}
	w.Reservations = append(w.Reservations, Reservation{UserName: userName, At: at})
	w.recompute()
	return nil
}

// Release removes the first reservation held by userName. The match is
// exact and case-sensitive; ErrNotReserved when no reservation matches.
func (w *Wish) Release(userName string) error {
	for i, r := range w.Reservations {
		if r.UserName == userName {
			w.Reservations = append(w.Reservations[:i], w.Reservations[i+1:]...)
			w.recompute()
			return nil
		}
	}
	return ErrNotReserved
}

// SetQuantity changes the wish capacity. Shrinking below the current
// reservation count truncates the log, keeping the earliest
// reservations; callers lose the later claims.
func (w *Wish) SetQuantity(q int) {
	if q < 1 {
		q = 1
	}
	w.Quantity = q
	if len(w.Reservations) > q {
		w.Reservations = w.Reservations[:q]
	}
	w.recompute()
}
