// Package cachestore is the persistent, process-shared map backing both
// the canonical equities table and the TTL object cache, as a single
// SQLite-compatible file (spec.md §4.1, §6). Query shape is grounded on
// the teacher's github.com/jmoiron/sqlx-based Postgres repositories
// (internal/persistence/postgres/*_repo.go), repointed at
// github.com/mattn/go-sqlite3 the way aristath-sentinel's
// internal/database package opens an embedded single-file store.
package cachestore

import (
	"bufio"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/domain"
)

const defaultEntryKey = "_"

// Store is a single SQLite-backed connection pool exposing both cache
// namespaces described in spec.md §4.1.
type Store struct {
	db  *sqlx.DB
	ttl time.Duration // 0 disables expiry.
}

// Open opens (creating if absent) the datastore at path and applies the
// schema. ttlMinutes governs the object cache only; 0 disables expiry; a
// negative value is a configuration error.
func Open(path string, ttlMinutes int) (*Store, error) {
	if ttlMinutes < 0 {
		return nil, apperr.NewConfigError("CACHE_TTL_MINUTES", "must be >= 0")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.NewStorageError("mkdir", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, apperr.NewStorageError("open", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.NewStorageError("ping", err)
	}
	db.SetMaxOpenConns(1) // single-file SQLite: serialise writers through one connection.

	if err := migrate(db); err != nil {
		return nil, apperr.NewStorageError("migrate", err)
	}

	return &Store{db: db, ttl: time.Duration(ttlMinutes) * time.Minute}, nil
}

func migrate(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS canonical_equities (
			share_class_figi TEXT PRIMARY KEY,
			payload          TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS object_cache (
			cache_name TEXT NOT NULL,
			key        TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload    BLOB NOT NULL,
			PRIMARY KEY (cache_name, key)
		);
	`)
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCache stores value under name's single default entry ("_").
func (s *Store) SaveCache(name string, value []byte) error {
	return s.SaveCacheEntry(name, defaultEntryKey, value)
}

// LoadCache loads name's single default entry.
func (s *Store) LoadCache(name string) ([]byte, bool, error) {
	return s.LoadCacheEntry(name, defaultEntryKey)
}

// SaveCacheEntry upserts a keyed object-cache entry with created_at set to
// now.
func (s *Store) SaveCacheEntry(name, key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO object_cache (cache_name, key, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_name, key) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload
	`, name, key, time.Now().Unix(), value)
	if err != nil {
		return apperr.NewStorageError("save_cache_entry", err)
	}
	return nil
}

// LoadCacheEntry loads a keyed object-cache entry. Entries older than the
// configured TTL are deleted inline and reported absent, per spec.md
// §4.1's lazy-eviction policy.
func (s *Store) LoadCacheEntry(name, key string) ([]byte, bool, error) {
	var row struct {
		CreatedAt int64  `db:"created_at"`
		Payload   []byte `db:"payload"`
	}
	err := s.db.Get(&row, `SELECT created_at, payload FROM object_cache WHERE cache_name = ? AND key = ?`, name, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewStorageError("load_cache_entry", err)
	}

	if s.ttl > 0 {
		age := time.Since(time.Unix(row.CreatedAt, 0))
		if age > s.ttl {
			if _, delErr := s.db.Exec(`DELETE FROM object_cache WHERE cache_name = ? AND key = ?`, name, key); delErr != nil {
				return nil, false, apperr.NewStorageError("evict_cache_entry", delErr)
			}
			return nil, false, nil
		}
	}

	return row.Payload, true, nil
}

// canonicalRow mirrors the canonical_equities table shape.
type canonicalRow struct {
	FIGI    string `db:"share_class_figi"`
	Payload string `db:"payload"`
}

// SaveCanonicalEquities upserts every equity in equities by its share-class
// FIGI, inside a single transaction.
func (s *Store) SaveCanonicalEquities(equities []domain.CanonicalEquity) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return apperr.NewStorageError("begin_save_canonical", err)
	}
	defer tx.Rollback()

	for _, eq := range equities {
		payload, err := json.Marshal(eq)
		if err != nil {
			return apperr.NewStorageError("marshal_canonical", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO canonical_equities (share_class_figi, payload)
			VALUES (?, ?)
			ON CONFLICT(share_class_figi) DO UPDATE SET payload = excluded.payload
		`, eq.FIGI(), payload); err != nil {
			return apperr.NewStorageError("save_canonical", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.NewStorageError("commit_save_canonical", err)
	}
	return nil
}

// LoadCanonicalEquities returns every row in the canonical table. A row
// whose payload fails to unmarshal is logged and skipped rather than
// failing the whole load, since one corrupt record should not block
// access to the rest of the store.
func (s *Store) LoadCanonicalEquities() ([]domain.CanonicalEquity, error) {
	var rows []canonicalRow
	if err := s.db.Select(&rows, `SELECT share_class_figi, payload FROM canonical_equities ORDER BY share_class_figi ASC`); err != nil {
		return nil, apperr.NewStorageError("load_canonical_equities", err)
	}

	out := make([]domain.CanonicalEquity, 0, len(rows))
	for _, r := range rows {
		var eq domain.CanonicalEquity
		if err := json.Unmarshal([]byte(r.Payload), &eq); err != nil {
			log.Warn().Str("figi", r.FIGI).Err(err).Msg("skipping corrupt canonical equity payload")
			continue
		}
		out = append(out, eq)
	}
	return out, nil
}

// LoadCanonicalEquity loads a single row by FIGI.
func (s *Store) LoadCanonicalEquity(figi string) (domain.CanonicalEquity, bool, error) {
	var row canonicalRow
	err := s.db.Get(&row, `SELECT share_class_figi, payload FROM canonical_equities WHERE share_class_figi = ?`, figi)
	if err == sql.ErrNoRows {
		return domain.CanonicalEquity{}, false, nil
	}
	if err != nil {
		return domain.CanonicalEquity{}, false, apperr.NewStorageError("load_canonical_equity", err)
	}

	var eq domain.CanonicalEquity
	if err := json.Unmarshal([]byte(row.Payload), &eq); err != nil {
		return domain.CanonicalEquity{}, false, apperr.NewDataError("canonical_equity", figi, err.Error())
	}
	return eq, true, nil
}

// Export writes the canonical table to path as gzip-compressed NDJSON, one
// record per line, ordered by FIGI ascending (spec.md §4.1, §7 scenario
// S6).
func (s *Store) Export(path string) error {
	equities, err := s.LoadCanonicalEquities()
	if err != nil {
		return err
	}
	sort.Slice(equities, func(i, j int) bool { return equities[i].FIGI() < equities[j].FIGI() })

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.NewStorageError("mkdir_export", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperr.NewStorageError("create_export_tmp", err)
	}
	defer os.Remove(tmp)

	gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		f.Close()
		return apperr.NewStorageError("gzip_export", err)
	}

	enc := json.NewEncoder(gz)
	for _, eq := range equities {
		if err := enc.Encode(eq); err != nil {
			gz.Close()
			f.Close()
			return apperr.NewStorageError("encode_export_line", err)
		}
	}

	if err := gz.Close(); err != nil {
		f.Close()
		return apperr.NewStorageError("close_gzip_export", err)
	}
	if err := f.Close(); err != nil {
		return apperr.NewStorageError("close_export_file", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return apperr.NewStorageError("rename_export", err)
	}
	return nil
}

// RebuildFromExport drops and repopulates the canonical table from an
// NDJSON.gz artifact produced by Export, then compacts storage. The new
// table is built inside a transaction so a malformed artifact never leaves
// the store half-replaced.
func (s *Store) RebuildFromExport(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperr.NewStorageError("open_export", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return apperr.NewStorageError("gunzip_export", err)
	}
	defer gz.Close()

	var equities []domain.CanonicalEquity
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var eq domain.CanonicalEquity
		if err := json.Unmarshal(line, &eq); err != nil {
			return apperr.NewDataError("export_line", string(line), err.Error())
		}
		equities = append(equities, eq)
	}
	if err := scanner.Err(); err != nil {
		return apperr.NewStorageError("scan_export", err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return apperr.NewStorageError("begin_rebuild", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM canonical_equities`); err != nil {
		return apperr.NewStorageError("clear_canonical", err)
	}
	for _, eq := range equities {
		payload, err := json.Marshal(eq)
		if err != nil {
			return apperr.NewStorageError("marshal_rebuild_row", err)
		}
		if _, err := tx.Exec(`INSERT INTO canonical_equities (share_class_figi, payload) VALUES (?, ?)`, eq.FIGI(), payload); err != nil {
			return apperr.NewStorageError("insert_rebuild_row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.NewStorageError("commit_rebuild", err)
	}

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return apperr.NewStorageError("vacuum", err)
	}
	return nil
}
