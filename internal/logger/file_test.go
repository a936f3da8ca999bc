package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger_CreatesRunFileAndSymlink(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, "info")
	require.NoError(t, err)
	defer l.Close()

	info, err := os.Lstat(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0)
}

func TestFileLogger_EventWritesRunAndWorkerLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, "info")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Event("info", "task_completed", "T1 done", "T1", 2, 1))

	workerLog := filepath.Join(dir, "workers", "worker-2.jsonl")
	data, err := os.ReadFile(workerLog)
	require.NoError(t, err)

	var r record
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &r))
	assert.Equal(t, "T1", r.TaskID)
	assert.Equal(t, 2, r.WorkerID)
	assert.Equal(t, 1, r.LevelNumber)
}

func TestFileLogger_Event_FiltersBelowMinimumLevel(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, "error")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Event("info", "noop", "should be filtered", "", 0, 0))

	data, err := os.ReadFile(l.runFile.Name())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileLogger_Event_NoWorkerLogWhenWorkerIDZero(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, "info")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Event("info", "level_started", "level 1 starting", "", 0, 1))

	entries, err := os.ReadDir(filepath.Join(dir, "workers"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
