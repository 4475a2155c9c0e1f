package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type api struct {
	store    *Store
	bus      *EventBus
	enricher *Enricher
	log      *slog.Logger
}

func newAPI(store *Store, bus *EventBus, enricher *Enricher, log *slog.Logger) *api {
	return &api{store: store, bus: bus, enricher: enricher, log: log}
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)

	mux.HandleFunc("GET /lists", a.handleListBoards)
	mux.HandleFunc("POST /lists", a.handleCreateBoard)
	mux.HandleFunc("GET /lists/{code}", a.handleGetBoard)
	mux.HandleFunc("PUT /lists/{code}", a.handleUpdateBoard)
	mux.HandleFunc("DELETE /lists/{code}", a.handleDeleteBoard)
	mux.HandleFunc("GET /lists/{code}/events", a.handleBoardEvents)

	mux.HandleFunc("POST /lists/{code}/wishes", a.handleAddWish)
	mux.HandleFunc("PUT /lists/{code}/wishes/{id}", a.handleUpdateWish)
	mux.HandleFunc("PATCH /lists/{code}/wishes/{id}/tick", a.handleTickWish)
	mux.HandleFunc("DELETE /lists/{code}/wishes/{id}", a.handleDeleteWish)

	mux.HandleFunc("GET /price", a.handlePricePreview)
	mux.HandleFunc("GET /share/{code}", a.handleShare)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"status": "ok"})
}

func (a *api) handleListBoards(w http.ResponseWriter, r *http.Request) {
	ownerName := r.URL.Query().Get("ownerName")
	if ownerName == "" {
		writeError(w, 400, "ownerName is required")
		return
	}
	writeJSON(w, 200, a.store.BoardsByOwner(ownerName))
}

func (a *api) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		OwnerName   string `json:"ownerName"`
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil || req.Title == "" || req.OwnerName == "" {
		writeError(w, 400, "title and ownerName are required")
		return
	}
	b, err := a.store.CreateBoard(req.Title, req.OwnerName, req.Code, req.Description)
	if err != nil {
		a.log.Error("create board", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, b)
}

func (a *api) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := a.store.BoardByCode(r.PathValue("code"))
	if err != nil {
		writeError(w, 404, "List not found")
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		renderShare(w, b)
		return
	}
	writeJSON(w, 200, b)
}

func (a *api) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		OwnerName   string  `json:"ownerName"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	b, err := a.store.UpdateBoard(r.PathValue("code"), req.OwnerName, req.Title, req.Description)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "List not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, 403, "Only owner can update list")
	case err != nil:
		a.log.Error("update board", "err", err)
		writeError(w, 500, "internal error")
	default:
		writeJSON(w, 200, b)
	}
}

func (a *api) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerName string `json:"ownerName"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	err := a.store.DeleteBoard(r.PathValue("code"), req.OwnerName)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "List not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, 403, "Only owner can delete list")
	case err != nil:
		a.log.Error("delete board", "err", err)
		writeError(w, 500, "internal error")
	default:
		w.WriteHeader(204)
	}
}

func (a *api) handleAddWish(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req struct {
		Title       string   `json:"title"`
		Priority    string   `json:"priority"`
		Description string   `json:"description"`
		Link        string   `json:"link"`
		Image       string   `json:"image"`
		Price       optFloat `json:"price"`
		PriceRange  string   `json:"priceRange"`
		Quantity    *int     `json:"quantity"`
	}
	if err := readJSON(w, r, &req); err != nil || req.Title == "" {
		writeError(w, 400, "title is required")
		return
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !validPriority(req.Priority) {
		writeError(w, 400, "priority must be low, medium or high")
		return
	}
	quantity := 1
	if req.Quantity != nil && *req.Quantity > 0 {
		quantity = *req.Quantity
	}
	wish := Wish{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Priority:     req.Priority,
		Description:  req.Description,
		Link:         req.Link,
		Image:        req.Image,
		Price:        req.Price.Value,
		PriceRange:   req.PriceRange,
		Quantity:     quantity,
		Reservations: []Reservation{},
		CreatedAt:    time.Now().UTC(),
	}
	wish.recompute()

	created, err := a.store.AddWish(code, wish)
	if errors.Is(err, ErrNotFound) {
		writeError(w, 404, "List not found")
		return
	}
	if err != nil {
		a.log.Error("add wish", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, created)

	if created.Link != "" {
		go a.enricher.EnrichWish(code, created.ID)
	}
}

func (a *api) handleUpdateWish(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req struct {
		Title       *string  `json:"title"`
		Priority    *string  `json:"priority"`
		Description *string  `json:"description"`
		Link        *string  `json:"link"`
		Image       *string  `json:"image"`
		Price       optFloat `json:"price"`
		PriceRange  *string  `json:"priceRange"`
		Quantity    *int     `json:"quantity"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Priority != nil && !validPriority(*req.Priority) {
		writeError(w, 400, "priority must be low, medium or high")
		return
	}
	wish, err := a.store.MutateWish(code, r.PathValue("id"), func(wi *Wish) (bool, error) {
		if req.Title != nil {
			wi.Title = *req.Title
		}
		if req.Priority != nil {
			wi.Priority = *req.Priority
		}
		if req.Description != nil {
			wi.Description = *req.Description
		}
		if req.Link != nil {
			wi.Link = *req.Link
		}
		if req.Image != nil {
			wi.Image = *req.Image
		}
		if req.Price.Set {
			wi.Price = req.Price.Value
		}
		if req.PriceRange != nil {
			wi.PriceRange = *req.PriceRange
		}
		// The numeric price and the free-text range are alternatives:
		// setting one without the other clears the stale counterpart.
		if req.Price.Set && req.Price.Value != nil && req.PriceRange == nil {
			wi.PriceRange = ""
		}
		if req.PriceRange != nil && *req.PriceRange != "" && !req.Price.Set {
			wi.Price = nil
		}
		if req.Quantity != nil && *req.Quantity > 0 {
			// Lossy when shrinking below the reservation count: later
			// reservations are dropped.
			wi.SetQuantity(*req.Quantity)
		}
		return true, nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "List not found")
	case errors.Is(err, ErrWishNotFound):
		writeError(w, 404, "Wish not found")
	case err != nil:
		a.log.Error("update wish", "err", err)
		writeError(w, 500, "internal error")
	default:
		writeJSON(w, 200, wish)
	}
}

func (a *api) handleTickWish(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req struct {
		Ticked   *bool  `json:"ticked"`
		UserName string `json:"userName"`
	}
	if err := readJSON(w, r, &req); err != nil || req.Ticked == nil || req.UserName == "" {
		writeError(w, 400, "ticked and userName are required")
		return
	}
	wish, err := a.store.MutateWish(code, r.PathValue("id"), func(wi *Wish) (bool, error) {
		if *req.Ticked {
			if err := wi.Claim(req.UserName, time.Now().UTC()); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := wi.Release(req.UserName); err != nil {
			return false, err
		}
		return true, nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "List not found")
	case errors.Is(err, ErrWishNotFound):
		writeError(w, 404, "Wish not found")
	case errors.Is(err, ErrCapacityExceeded):
		writeError(w, 400, "All reserved")
	case errors.Is(err, ErrNotReserved):
		writeError(w, 403, "Cannot release for another user")
	case err != nil:
		a.log.Error("tick wish", "err", err)
		writeError(w, 500, "internal error")
	default:
		writeJSON(w, 200, wish)
	}
}

func (a *api) handleDeleteWish(w http.ResponseWriter, r *http.Request) {
	err := a.store.DeleteWish(r.PathValue("code"), r.PathValue("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "List not found")
	case errors.Is(err, ErrWishNotFound):
		writeError(w, 404, "Wish not found")
	case err != nil:
		a.log.Error("delete wish", "err", err)
		writeError(w, 500, "internal error")
	default:
		w.WriteHeader(204)
	}
}

// Preview failures degrade to empty data rather than an error status.
func (a *api) handlePricePreview(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("url")
	if link == "" {
		writeError(w, 400, "url is required")
		return
	}
	preview, err := a.enricher.Preview(r.Context(), link)
	if err != nil {
		writeJSON(w, 200, Preview{})
		return
	}
	writeJSON(w, 200, preview)
}

func (a *api) handleShare(w http.ResponseWriter, r *http.Request) {
	b, err := a.store.BoardByCode(r.PathValue("code"))
	if err != nil {
		http.Error(w, "Not found", 404)
		return
	}
	renderShare(w, b)
}

func (a *api) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := a.store.BoardByCode(code); err != nil {
		writeError(w, 404, "List not found")
		return
	}
	a.bus.ServeSSE(w, r, code)
}
