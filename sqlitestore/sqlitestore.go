// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package sqlitestore implements a persistent storeface.Store backed by
// SQLite, grounded on the teacher repository's
// internal/backend/backend_store.go: named-parameter queries loaded
// from an embedded sql/ directory via sqlitex.ExecuteFS /
// sqlitex.PrepareTransientFS, schema migrations tracked by
// sqlitemigration.Schema, and a sqlitemigration.Pool guarding
// concurrent access to a single connection at a time.
//
// Unlike the teacher's backend, this package never stores object
// bytes: [Store.AddToStore] only records the new path and its
// references; the caller is responsible for the underlying content,
// since content storage is explicitly out of scope for this module's
// core.
package sqlitestore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"zombiezen.com/go/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"

	"lattice.build/corestore/pathhash"
	"lattice.build/corestore/rewrite"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
	"lattice.build/corestore/trust"
)

//go:embed sql/*.sql
//go:embed sql/schema/*.sql
var rawSQLFiles embed.FS

func sqlFiles() fs.FS {
	sub, err := fs.Sub(rawSQLFiles, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

var schemaState struct {
	init   sync.Once
	schema sqlitemigration.Schema
	err    error
}

func loadSchema() (sqlitemigration.Schema, error) {
	schemaState.init.Do(func() {
		for i := 1; ; i++ {
			migration, err := fs.ReadFile(sqlFiles(), fmt.Sprintf("schema/%02d.sql", i))
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			if err != nil {
				schemaState.err = err
				return
			}
			schemaState.schema.Migrations = append(schemaState.schema.Migrations, string(migration))
		}
	})
	return schemaState.schema, schemaState.err
}

func prepareConn(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode = wal;", nil); err != nil {
		return err
	}
	return sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys = on;", nil)
}

// Store is a persistent storeface.Store backed by a SQLite database.
type Store struct {
	db *sqlitemigration.Pool
}

// Open opens (creating if necessary) the SQLite database at dbPath as a
// [Store]. Callers must call [Store.Close] when done.
func Open(dbPath string) (*Store, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("open store database %s: load schema: %v", dbPath, err)
	}
	db := sqlitemigration.NewPool(dbPath, schema, sqlitemigration.Options{
		Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite,
		PrepareConn: prepareConn,
		OnStartMigrate: func() {
			log.Debugf(context.Background(), "corestore: migrating %s", dbPath)
		},
		OnError: func(err error) {
			log.Errorf(context.Background(), "corestore: migration of %s: %v", dbPath, err)
		},
	})
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) conn(ctx context.Context) (*sqlite.Conn, func(), error) {
	conn, err := s.db.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { s.db.Put(conn) }, nil
}

func (s *Store) upsertPath(conn *sqlite.Conn, p storepath.Path) error {
	if p == "" {
		return nil
	}
	return sqlitex.ExecuteFS(conn, sqlFiles(), "upsert_path.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p)},
	})
}

// AddToStore records the path formed from srcPath's directory,
// expectedHashPart and name, together with references. Since no content
// is stored, rewrites are not applied and do not change the returned
// path, no content hash is computed, and references are added to any
// already recorded for that path rather than replacing them.
func (s *Store) AddToStore(ctx context.Context, srcPath storepath.Path, expectedHashPart pathhash.Hash, name string, references storepath.References, rewrites rewrite.Map) (newPath storepath.Path, err error) {
	newPath, err = srcPath.Dir().Object(expectedHashPart.String() + "-" + name)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: add to store: %v", err)
	}

	conn, release, err := s.conn(ctx)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: add to store: %v", err)
	}
	defer release()

	endTxn := sqlitex.Save(conn)
	defer func() { endTxn(&err) }()

	if err := s.upsertPath(conn, newPath); err != nil {
		return "", fmt.Errorf("sqlitestore: add to store: %v", err)
	}

	addRef, err := sqlitex.PrepareTransientFS(conn, sqlFiles(), "add_reference.sql")
	if err != nil {
		return "", fmt.Errorf("sqlitestore: add to store: %v", err)
	}
	defer addRef.Finalize()

	others := append([]storepath.Path(nil), references.Others...)
	if references.Self {
		others = append(others, newPath)
	}
	for _, ref := range others {
		if err := s.upsertPath(conn, ref); err != nil {
			return "", fmt.Errorf("sqlitestore: add to store: %v", err)
		}
		addRef.SetText(":referrer", string(newPath))
		addRef.SetText(":reference", string(ref))
		if _, err := addRef.Step(); err != nil {
			return "", fmt.Errorf("sqlitestore: add to store: add reference %s: %v", ref, err)
		}
		if err := addRef.Reset(); err != nil {
			return "", fmt.Errorf("sqlitestore: add to store: %v", err)
		}
	}

	return newPath, nil
}

func (s *Store) IsValidPath(ctx context.Context, p storepath.Path) (bool, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "object_exists.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			exists = stmt.ColumnBool(0)
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("sqlitestore: check validity of %s: %v", p, err)
	}
	return exists, nil
}

func (s *Store) queryPaths(ctx context.Context, query string, param string, value string) ([]storepath.Path, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []storepath.Path
	err = sqlitex.ExecuteFS(conn, sqlFiles(), query, &sqlitex.ExecOptions{
		Named: map[string]any{param: value},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storepath.Path(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: %s: %v", query, err)
	}
	return out, nil
}

func (s *Store) QueryReferences(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	return s.queryPaths(ctx, "query_references.sql", ":path", string(p))
}

func (s *Store) QueryReferrers(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	return s.queryPaths(ctx, "query_referrers.sql", ":path", string(p))
}

func (s *Store) QueryValidDerivers(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	return s.queryPaths(ctx, "query_valid_derivers.sql", ":path", string(p))
}

func (s *Store) QueryDerivationOutputs(ctx context.Context, drvPath storepath.Path) ([]storepath.Path, error) {
	return s.queryPaths(ctx, "query_derivation_outputs.sql", ":drv_path", string(drvPath))
}

func (s *Store) QueryDeriver(ctx context.Context, p storepath.Path) (storepath.Path, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var deriver string
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "query_deriver.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			deriver = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("sqlitestore: query deriver of %s: %v", p, err)
	}
	return storepath.Path(deriver), nil
}

// SetDeriver records drvPath as the deriver of outputPath. This is
// bookkeeping surfaced beyond storeface.Store for realization drivers
// that build against this package directly; the core algorithms never
// call it themselves.
func (s *Store) SetDeriver(ctx context.Context, outputPath, drvPath storepath.Path) error {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	endTxn := sqlitex.Save(conn)
	defer func() { endTxn(&err) }()

	if err := s.upsertPath(conn, outputPath); err != nil {
		return fmt.Errorf("sqlitestore: set deriver of %s: %v", outputPath, err)
	}
	if err := s.upsertPath(conn, drvPath); err != nil {
		return fmt.Errorf("sqlitestore: set deriver of %s: %v", outputPath, err)
	}
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "set_deriver.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(outputPath), ":deriver": string(drvPath)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set deriver of %s: %v", outputPath, err)
	}
	return nil
}

// AddDerivationOutput registers outputPath as one of drvPath's declared
// outputs, for [Store.QueryDerivationOutputs].
func (s *Store) AddDerivationOutput(ctx context.Context, drvPath, outputPath storepath.Path) error {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	endTxn := sqlitex.Save(conn)
	defer func() { endTxn(&err) }()

	if err := s.upsertPath(conn, drvPath); err != nil {
		return fmt.Errorf("sqlitestore: add derivation output: %v", err)
	}
	if err := s.upsertPath(conn, outputPath); err != nil {
		return fmt.Errorf("sqlitestore: add derivation output: %v", err)
	}
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "add_drv_output.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":drv_path": string(drvPath), ":output_path": string(outputPath)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: add derivation output: %v", err)
	}
	return nil
}

func (s *Store) QueryOutputEqClasses(ctx context.Context, p storepath.Path) ([]storeface.EqClass, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []storeface.EqClass
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "query_output_eq_classes.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storeface.EqClass(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query output equivalence classes of %s: %v", p, err)
	}
	return out, nil
}

// AddOutputEqClass declares that p belongs to class, independent of any
// membership record. Used to seed the classes an output slot's fresh
// path belongs to before it has any recorded members.
func (s *Store) AddOutputEqClass(ctx context.Context, p storepath.Path, class storeface.EqClass) error {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.upsertPath(conn, p); err != nil {
		return fmt.Errorf("sqlitestore: add output equivalence class: %v", err)
	}
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "add_output_eq_class.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p), ":class": string(class)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: add output equivalence class: %v", err)
	}
	return nil
}

func (s *Store) QueryOutputEqMembers(ctx context.Context, class storeface.EqClass) ([]storeface.EqClassMember, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []storeface.EqClassMember
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "query_output_eq_members.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":class": string(class)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storeface.EqClassMember{
				Path:    storepath.Path(stmt.ColumnText(0)),
				TrustID: trust.ID(stmt.ColumnText(1)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query output equivalence members of %v: %v", class, err)
	}
	return out, nil
}

func (s *Store) AddOutputEqMember(ctx context.Context, class storeface.EqClass, id trust.ID, p storepath.Path) (err error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	endTxn := sqlitex.Save(conn)
	defer func() { endTxn(&err) }()

	if err := s.upsertPath(conn, p); err != nil {
		return fmt.Errorf("sqlitestore: add output equivalence member: %v", err)
	}
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "add_output_eq_class.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p), ":class": string(class)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: add output equivalence member: %v", err)
	}
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "add_output_eq_member.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":class": string(class), ":path": string(p), ":trust_id": string(id)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: add output equivalence member: %v", err)
	}
	return nil
}

// SetSubstitutable records that p can be fetched from a substituter
// with the given info, replacing any previously recorded info for p.
func (s *Store) SetSubstitutable(ctx context.Context, p storepath.Path, info storeface.SubstitutablePathInfo) (err error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	endTxn := sqlitex.Save(conn)
	defer func() { endTxn(&err) }()

	err = sqlitex.ExecuteFS(conn, sqlFiles(), "set_substitutable.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":path":          string(p),
			":download_size": info.DownloadSize,
			":nar_size":      info.NARSize,
		},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set substitutable %s: %v", p, err)
	}

	err = sqlitex.ExecuteFS(conn, sqlFiles(), "delete_substitutable_refs.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":path": string(p)},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set substitutable %s: %v", p, err)
	}

	addRef, err := sqlitex.PrepareTransientFS(conn, sqlFiles(), "add_substitutable_ref.sql")
	if err != nil {
		return fmt.Errorf("sqlitestore: set substitutable %s: %v", p, err)
	}
	defer addRef.Finalize()
	for i, ref := range info.References {
		addRef.SetText(":path", string(p))
		addRef.SetText(":reference", string(ref))
		addRef.SetInt64(":position", int64(i))
		if _, err := addRef.Step(); err != nil {
			return fmt.Errorf("sqlitestore: set substitutable %s: %v", p, err)
		}
		if err := addRef.Reset(); err != nil {
			return fmt.Errorf("sqlitestore: set substitutable %s: %v", p, err)
		}
	}
	return nil
}

func (s *Store) QuerySubstitutablePathInfos(ctx context.Context, paths []storepath.Path) (map[storepath.Path]storeface.SubstitutablePathInfo, error) {
	conn, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make(map[storepath.Path]storeface.SubstitutablePathInfo)
	for _, p := range paths {
		var info storeface.SubstitutablePathInfo
		found := false
		err := sqlitex.ExecuteFS(conn, sqlFiles(), "query_substitutable.sql", &sqlitex.ExecOptions{
			Named: map[string]any{":path": string(p)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				info.DownloadSize = stmt.ColumnInt64(0)
				info.NARSize = stmt.ColumnInt64(1)
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: query substitutable path infos: %v", err)
		}
		if !found {
			continue
		}
		err = sqlitex.ExecuteFS(conn, sqlFiles(), "query_substitutable_refs.sql", &sqlitex.ExecOptions{
			Named: map[string]any{":path": string(p)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				info.References = append(info.References, storepath.Path(stmt.ColumnText(0)))
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: query substitutable path infos: %v", err)
		}
		out[p] = info
	}
	return out, nil
}

var _ storeface.Store = (*Store)(nil)
