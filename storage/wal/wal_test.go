package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	log, err := Open(t.TempDir())
	require.NoError(t, err)

	var lsns []uint64
	for i := 0; i < 5; i++ {
		lsn, err := log.Append([]byte("record"))
		require.NoError(t, err)
		lsns = append(lsns, lsn)
	}
	for i := 1; i < len(lsns); i++ {
		require.Greater(t, lsns[i], lsns[i-1])
	}
}

func TestFlushToLSNAdvancesFlushedLSN(t *testing.T) {
	log, err := Open(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, uint64(0), log.FlushedLSN())
	lsn, err := log.Append([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, log.FlushToLSN(lsn))
	require.Equal(t, lsn, log.FlushedLSN())
	require.Equal(t, lsn, log.GetFlushedLSN())
}

func TestReopenRecoversCurrentLSN(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	require.NoError(t, err)

	var lastLSN uint64
	for i := 0; i < 10; i++ {
		lastLSN, err = log.Append([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, log.FlushToLSN(lastLSN))
	require.NoError(t, log.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	nextLSN, err := reopened.Append([]byte("y"))
	require.NoError(t, err)
	require.Greater(t, nextLSN, lastLSN)
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cm := NewCheckpointManager(dir)

	initial, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(0), initial.LSN)

	require.NoError(t, cm.Save(42, "testdb"))
	loaded, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(42), loaded.LSN)
	require.Equal(t, "testdb", loaded.Database)

	require.NoError(t, cm.Delete())
	afterDelete, err := cm.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(0), afterDelete.LSN)
}

func TestCheckpointPathIsUnderDatabaseDir(t *testing.T) {
	dir := t.TempDir()
	cm := NewCheckpointManager(dir)
	require.Equal(t, filepath.Join(dir, "checkpoint.json"), cm.path)
}
