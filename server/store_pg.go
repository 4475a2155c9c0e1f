package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// pgBackend persists the document as a single JSONB row. The upsert
// replaces the whole row, keeping the atomic full-document-save
// contract of the file backend.
type pgBackend struct {
	db *sql.DB
}

func newPGBackend(db *sql.DB) *pgBackend { return &pgBackend{db: db} }

func (p *pgBackend) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, pgSchema)
	return err
}

func (p *pgBackend) load() (*Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var raw []byte
	err := p.db.QueryRowContext(ctx, `select doc from giftboard_document where id=1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &Document{Lists: []Board{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (p *pgBackend) save(doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = p.db.ExecContext(ctx,
		`insert into giftboard_document(id, doc) values(1, $1)
		 on conflict (id) do update set doc=excluded.doc, updated_at=now()`, data)
	return err
}

const pgSchema = `
create table if not exists giftboard_document(
    id int primary key check (id = 1),
    doc jsonb not null,
    updated_at timestamptz not null default now()
);
`
