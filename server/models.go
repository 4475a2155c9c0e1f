package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Document struct {
	Lists []Board `json:"lists"`
}

type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Code        string    `json:"code"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Wishes      []Wish    `json:"wishes"`
}

// OwnedBy reports whether name matches the board owner. Ownership is a
// case-insensitive name match, not a security boundary.
func (b *Board) OwnedBy(name string) bool {
	return name != "" && strings.EqualFold(b.Owner, name)
}

type Reservation struct {
	UserName string    `json:"userName"`
	At       time.Time `json:"at"`
}

type Wish struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Priority     string        `json:"priority"`
	Description  string        `json:"description"`
	Link         string        `json:"link"`
	Image        string        `json:"image"`
	Price        *float64      `json:"price"`
	PriceRange   string        `json:"priceRange"`
	Quantity     int           `json:"quantity"`
	Reservations []Reservation `json:"reservations"`
	// Derived from Reservations. Persisted so documents stay readable by
	// older consumers, but recomputed on every load and mutation.
	ReservedCount int        `json:"reservedCount"`
	Ticked        bool       `json:"ticked"`
	TickedBy      *string    `json:"tickedBy"`
	TickedAt      *time.Time `json:"tickedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

func validPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// recompute refreshes the derived reservation fields from the
// reservation log.
func (w *Wish) recompute() {
	w.ReservedCount = len(w.Reservations)
	w.Ticked = w.ReservedCount > 0
	if w.Ticked {
		last := w.Reservations[len(w.Reservations)-1]
		w.TickedBy = &last.UserName
		w.TickedAt = &last.At
	} else {
		w.TickedBy = nil
		w.TickedAt = nil
	}
}

// normalizeWish repairs a wish loaded from an older document: quantity
// floored to 1, a legacy single-claim backfilled into the reservation
// log, and derived fields recomputed rather than trusted as stored.
func normalizeWish(w *Wish, now time.Time) {
	if w.Quantity < 1 {
		w.Quantity = 1
	}
	if w.Reservations == nil {
		w.Reservations = []Reservation{}
		if w.Ticked {
			r := Reservation{At: now}
			if w.TickedBy != nil {
				r.UserName = *w.TickedBy
			}
			if w.TickedAt != nil {
				r.At = *w.TickedAt
			}
			w.Reservations = append(w.Reservations, r)
		}
	}
	if !validPriority(w.Priority) {
		w.Priority = PriorityMedium
	}
	w.recompute()
}

func normalizeBoard(b *Board, now time.Time) {
	if b.Wishes == nil {
		b.Wishes = []Wish{}
	}
	for i := range b.Wishes {
		normalizeWish(&b.Wishes[i], now)
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(text string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(text), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// uniqueCode derives a URL-safe code from the title, suffixing a counter
// until it does not collide with an existing code.
func uniqueCode(title string, existing map[string]bool) string {
	base := slugify(title)
	if base == "" {
		base = "list"
	}
	code := base
	for n := 1; existing[code]; n++ {
		code = fmt.Sprintf("%s-%d", base, n)
	}
	return code
}

// normalizePrice parses a user-supplied price string, accepting "," as a
// decimal separator. Empty or unparseable input yields nil.
func normalizePrice(value string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if s == "" {
		return nil
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &num
}
