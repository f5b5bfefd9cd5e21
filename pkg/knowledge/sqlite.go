package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteIndex keeps documents and their vectors in one table and ranks them
// with a full scan. Vectors are little-endian float32 blobs.
type SQLiteIndex struct {
	db *sql.DB
}

var _ Index = &SQLiteIndex{}

func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite knowledge index: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteIndex(dsn string) (*SQLiteIndex, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite knowledge index: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_documents (
			doc_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			tags_json TEXT NOT NULL DEFAULT '[]',
			model TEXT NOT NULL DEFAULT '',
			dims INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`)
	if err != nil {
		return errors.Wrap(err, "sqlite knowledge index: migrate")
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite knowledge index: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_documents(doc_id, title, body, source, tags_json, model, dims, embedding, updated_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			source = excluded.source,
			tags_json = excluded.tags_json,
			model = excluded.model,
			dims = excluded.dims,
			embedding = excluded.embedding,
			updated_at_ms = excluded.updated_at_ms
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite knowledge index: prepare")
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for _, e := range entries {
		if e.Document.ID == "" {
			return errors.New("sqlite knowledge index: document id is empty")
		}
		tags, err := json.Marshal(e.Document.Tags)
		if err != nil {
			return errors.Wrap(err, "sqlite knowledge index: marshal tags")
		}
		if _, err := stmt.ExecContext(ctx,
			e.Document.ID, e.Document.Title, e.Document.Body, e.Document.Source, string(tags),
			e.Model, len(e.Vector), encodeVector(e.Vector), now,
		); err != nil {
			return errors.Wrapf(err, "sqlite knowledge index: upsert %s", e.Document.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite knowledge index: commit")
}

func (s *SQLiteIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, title, body, source, tags_json, model, embedding
		FROM knowledge_documents WHERE dims = ?
		ORDER BY rowid
	`, len(query))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite knowledge index: search")
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite knowledge index: rows")
	}
	return rank(query, entries, k), nil
}

func (s *SQLiteIndex) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, title, body, source, tags_json, model, embedding
		FROM knowledge_documents ORDER BY rowid
	`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite knowledge index: documents")
	}
	defer func() { _ = rows.Close() }()

	out := []Document{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e.Document)
	}
	return out, errors.Wrap(rows.Err(), "sqlite knowledge index: rows")
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		tagsJSON string
		blob     []byte
	)
	if err := rows.Scan(&e.Document.ID, &e.Document.Title, &e.Document.Body, &e.Document.Source, &tagsJSON, &e.Model, &blob); err != nil {
		return Entry{}, errors.Wrap(err, "sqlite knowledge index: scan")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &e.Document.Tags); err != nil {
		return Entry{}, errors.Wrap(err, "sqlite knowledge index: unmarshal tags")
	}
	v, err := decodeVector(blob)
	if err != nil {
		return Entry{}, err
	}
	e.Vector = v
	return e, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Errorf("sqlite knowledge index: vector blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
