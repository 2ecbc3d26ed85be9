// Package dgsqlite is a SQLite-backed [dgstore.Store].
//
// Build with the purego tag (or without cgo) to use the pure Go driver.
package dgsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync/atomic"

	"github.com/golang/snappy"
	"github.com/gordian-engine/gdag/dg/dgcodec"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgstore"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBlockCacheSize is the number of decoded blocks kept in memory
// in front of LoadBlock.
const DefaultBlockCacheSize = 4096

// Store is a single type satisfying all the [dgstore] interfaces.
type Store struct {
	// Which driver was compiled in: "cgo" or "purego".
	BuildType string

	// Reads go through ro; all writes serialize through the single rw connection.
	ro, rw *sql.DB

	codec dgcodec.MarshalCodec

	blocks *lru.Cache[dgconsensus.BlockRef, dgconsensus.Block]
}

var _ dgstore.Store = (*Store)(nil)

// NewOnDiskStore opens the database at dbPath, creating the file when absent.
func NewOnDiskStore(
	ctx context.Context,
	dbPath string,
	codec dgcodec.MarshalCodec,
) (*Store, error) {
	dbPath = filepath.Clean(dbPath)
	if err := ensureFile(dbPath); err != nil {
		return nil, err
	}

	base := "file:" + dbPath
	return openStore(ctx, poolURIs{
		rw:  base + "?mode=rw",
		ro:  base + "?mode=ro",
		wal: true,
	}, codec)
}

// ensureFile creates an empty file at path if nothing exists there.
// SQLite refuses mode=rw on a missing file.
func ensureFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat database path %q: %w", path, err)
	}

	// O_EXCL so a file created concurrently is left alone.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create database file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close new database file %q: %w", path, err)
	}
	return nil
}

var memDBSeq atomic.Uint32

// NewInMemStore opens a fresh in-memory database unique to this call.
func NewInMemStore(
	ctx context.Context,
	codec dgcodec.MarshalCodec,
) (*Store, error) {
	// The unique name plus a shared cache lets both pools see one database.
	// An in-memory database has no read-only mode,
	// so the read pool differs only by omitting the immediate txlock.
	ro := fmt.Sprintf("file:dgmem%d?mode=memory&cache=shared", memDBSeq.Add(1))
	return openStore(ctx, poolURIs{
		// https://www.sqlite.org/lang_transaction.html#deferred_immediate_and_exclusive_transactions
		rw: ro + "&_txlock=immediate",
		ro: ro,
	}, codec)
}

type poolURIs struct {
	rw, ro string

	// Only meaningful for on-disk files; the setting persists in the file.
	wal bool
}

// openStore opens the writer and reader pools separately,
// since SQLite transaction locking interacts badly with a single database/sql pool.
// https://www.sqlite.org/lang_transaction.html
func openStore(ctx context.Context, u poolURIs, codec dgcodec.MarshalCodec) (*Store, error) {
	rw, err := sql.Open(sqliteDriverType, u.rw)
	if err != nil {
		return nil, fmt.Errorf("open writer pool: %w", err)
	}

	// One writer connection: concurrent writers queue on the pool
	// rather than failing with "database is locked".
	rw.SetMaxOpenConns(1)

	if err := prepareWriter(ctx, rw, u.wal); err != nil {
		_ = rw.Close()
		return nil, err
	}

	ro, err := sql.Open(sqliteDriverType, u.ro)
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("open reader pool: %w", err)
	}
	if err := enableForeignKeys(ctx, ro); err != nil {
		_ = errors.Join(ro.Close(), rw.Close())
		return nil, err
	}

	cache, err := lru.New[dgconsensus.BlockRef, dgconsensus.Block](DefaultBlockCacheSize)
	if err != nil {
		_ = errors.Join(ro.Close(), rw.Close())
		return nil, fmt.Errorf("create block cache: %w", err)
	}

	return &Store{
		BuildType: sqliteBuildType,

		ro: ro,
		rw: rw,

		codec: codec,

		blocks: cache,
	}, nil
}

func prepareWriter(ctx context.Context, rw *sql.DB, wal bool) error {
	defer trace.StartRegion(ctx, "prepareWriter").End()

	if wal {
		if _, err := rw.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
			return fmt.Errorf("enable WAL journal: %w", err)
		}
	}

	if err := enableForeignKeys(ctx, rw); err != nil {
		return err
	}

	// https://www.sqlite.org/lang_analyze.html#periodically_run_pragma_optimize_
	if _, err := rw.ExecContext(ctx, `PRAGMA optimize(0x10002)`); err != nil {
		return fmt.Errorf("startup optimize: %w", err)
	}

	return migrate(ctx, rw)
}

// foreign_keys is a connection setting and is not stored in the file.
func enableForeignKeys(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	errRO := s.ro.Close()
	if errRO != nil {
		errRO = fmt.Errorf("error closing read-only database: %w", errRO)
	}
	errRW := s.rw.Close()
	if errRW != nil {
		errRW = fmt.Errorf("error closing read-write database: %w", errRW)
	}

	return errors.Join(errRO, errRW)
}

func (s *Store) SaveBlocks(ctx context.Context, blocks []dgconsensus.Block) error {
	defer trace.StartRegion(ctx, "SaveBlocks").End()

	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT OR IGNORE INTO blocks(round, author, digest, data) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare block insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range blocks {
		enc, err := s.codec.MarshalBlock(b)
		if err != nil {
			return fmt.Errorf("failed to marshal block %s: %w", b.Ref(), err)
		}
		if _, err := stmt.ExecContext(
			ctx,
			b.Round, uint16(b.Author), b.Digest[:], snappy.Encode(nil, enc),
		); err != nil {
			return fmt.Errorf("failed to insert block %s: %w", b.Ref(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) LoadBlock(ctx context.Context, ref dgconsensus.BlockRef) (dgconsensus.Block, error) {
	defer trace.StartRegion(ctx, "LoadBlock").End()

	if b, ok := s.blocks.Get(ref); ok {
		return b.Clone(), nil
	}

	var data []byte
	err := s.ro.QueryRowContext(
		ctx,
		`SELECT data FROM blocks WHERE round = ? AND author = ? AND digest = ?`,
		ref.Round, uint16(ref.Author), ref.Digest[:],
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dgconsensus.Block{}, dgstore.ErrBlockNotFound
		}
		return dgconsensus.Block{}, fmt.Errorf("failed to select block %s: %w", ref, err)
	}

	b, err := s.decodeBlock(data)
	if err != nil {
		return dgconsensus.Block{}, fmt.Errorf("failed to decode block %s: %w", ref, err)
	}

	s.blocks.Add(ref, b.Clone())
	return b, nil
}

func (s *Store) LoadBlocksInRoundRange(ctx context.Context, lo, hi uint32) ([]dgconsensus.Block, error) {
	defer trace.StartRegion(ctx, "LoadBlocksInRoundRange").End()

	rows, err := s.ro.QueryContext(
		ctx,
		`SELECT data FROM blocks WHERE round >= ? AND round <= ? ORDER BY round, author, digest`,
		lo, hi,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select blocks in rounds [%d, %d]: %w", lo, hi, err)
	}
	defer rows.Close()

	var out []dgconsensus.Block
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		b, err := s.decodeBlock(data)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}

	return out, nil
}

func (s *Store) decodeBlock(data []byte) (dgconsensus.Block, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return dgconsensus.Block{}, fmt.Errorf("failed to decompress block: %w", err)
	}
	var b dgconsensus.Block
	if err := s.codec.UnmarshalBlock(raw, &b); err != nil {
		return dgconsensus.Block{}, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return b, nil
}

func (s *Store) SaveCommit(ctx context.Context, c dgconsensus.Commit) error {
	defer trace.StartRegion(ctx, "SaveCommit").End()

	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last uint32
	if err := tx.QueryRowContext(
		ctx, `SELECT COALESCE(MAX(idx), 0) FROM commits`,
	).Scan(&last); err != nil {
		return fmt.Errorf("failed to select last commit index: %w", err)
	}

	if c.Index >= 1 && c.Index <= last {
		var data []byte
		if err := tx.QueryRowContext(
			ctx, `SELECT data FROM commits WHERE idx = ?`, c.Index,
		).Scan(&data); err != nil {
			return fmt.Errorf("failed to select existing commit %d: %w", c.Index, err)
		}
		var have dgconsensus.Commit
		if err := s.codec.UnmarshalCommit(data, &have); err != nil {
			return fmt.Errorf("failed to unmarshal existing commit %d: %w", c.Index, err)
		}
		if have.Equal(c) {
			return nil
		}
		return dgstore.OverwriteError{Field: "index", Value: fmt.Sprint(c.Index)}
	}

	if c.Index != last+1 {
		return dgstore.CommitIndexGapError{Want: last + 1, Got: c.Index}
	}

	enc, err := s.codec.MarshalCommit(c)
	if err != nil {
		return fmt.Errorf("failed to marshal commit %d: %w", c.Index, err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO commits(idx, leader_round, leader_author, data) VALUES (?, ?, ?, ?)`,
		c.Index, c.Leader.Round, uint16(c.Leader.Author), enc,
	); err != nil {
		if isPrimaryKeyConstraintError(err) {
			return dgstore.OverwriteError{Field: "index", Value: fmt.Sprint(c.Index)}
		}
		return fmt.Errorf("failed to insert commit %d: %w", c.Index, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) LoadCommit(ctx context.Context, idx uint32) (dgconsensus.Commit, error) {
	defer trace.StartRegion(ctx, "LoadCommit").End()

	var data []byte
	if err := s.ro.QueryRowContext(
		ctx, `SELECT data FROM commits WHERE idx = ?`, idx,
	).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dgconsensus.Commit{}, dgstore.ErrCommitNotFound
		}
		return dgconsensus.Commit{}, fmt.Errorf("failed to select commit %d: %w", idx, err)
	}

	var c dgconsensus.Commit
	if err := s.codec.UnmarshalCommit(data, &c); err != nil {
		return dgconsensus.Commit{}, fmt.Errorf("failed to unmarshal commit %d: %w", idx, err)
	}
	return c, nil
}

func (s *Store) LoadCommitsFrom(ctx context.Context, idx uint32) ([]dgconsensus.Commit, error) {
	defer trace.StartRegion(ctx, "LoadCommitsFrom").End()

	rows, err := s.ro.QueryContext(
		ctx, `SELECT data FROM commits WHERE idx >= ? ORDER BY idx`, idx,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select commits from %d: %w", idx, err)
	}
	defer rows.Close()

	var out []dgconsensus.Commit
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		var c dgconsensus.Commit
		if err := s.codec.UnmarshalCommit(data, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal commit: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}

	return out, nil
}

func (s *Store) LastCommit(ctx context.Context) (dgconsensus.Commit, error) {
	defer trace.StartRegion(ctx, "LastCommit").End()

	var data []byte
	err := s.ro.QueryRowContext(
		ctx, `SELECT data FROM commits ORDER BY idx DESC LIMIT 1`,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dgconsensus.Commit{}, dgstore.ErrStoreUninitialized
		}
		return dgconsensus.Commit{}, fmt.Errorf("failed to select last commit: %w", err)
	}

	var c dgconsensus.Commit
	if err := s.codec.UnmarshalCommit(data, &c); err != nil {
		return dgconsensus.Commit{}, fmt.Errorf("failed to unmarshal last commit: %w", err)
	}
	return c, nil
}
