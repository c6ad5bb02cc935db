// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	mode, err := JournalMode(db)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t (data) VALUES ('x')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	issues, err := VerifyFile(context.Background(), path, QuickCheck)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestVerifyIntegrity_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("this is definitely not an sqlite file, just text padding it out"), 0o600))

	issues, err := VerifyFile(context.Background(), path, FullCheck)
	assert.True(t, err != nil || len(issues) > 0, "garbage file passed verification")
}

func TestCheck_OpenDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "live.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	for _, mode := range []CheckMode{QuickCheck, FullCheck} {
		issues, err := Check(context.Background(), db, mode)
		require.NoError(t, err, mode)
		assert.Empty(t, issues, mode)
	}
}
