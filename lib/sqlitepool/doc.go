// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool used for
// lapse's local structured storage, in particular the capture index.
//
// It wraps zombiezen.com/go/sqlite with a single set of pragmas so
// every database in the project behaves the same way: WAL journaling
// for concurrent readers alongside the single writer, NORMAL
// synchronous (transactions survive a process crash; an OS crash can
// lose the tail, which is acceptable when the images on disk are the
// source of truth), a busy timeout instead of immediate SQLITE_BUSY,
// and memory-mapped reads.
//
// Callers [Pool.Take] a connection, work, and [Pool.Put] it back. The
// pool is safe for concurrent use; an individual connection belongs
// to one goroutine at a time.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/lapse/index.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package stays thin on purpose: it hands out raw zombiezen
// connections and leaves SQL to the caller. Stores write their own
// statements with sqlitex.Execute and manage transactions with
// sqlitex.ImmediateTransaction; there is no query builder layer.
package sqlitepool
