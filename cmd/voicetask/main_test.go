package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voicetask/internal/capture"
	"github.com/fyrsmithlabs/voicetask/internal/credentials"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
)

func findCmd(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not found under %q", name, parent.Name())
	return nil
}

func TestRootCmd_Subcommands(t *testing.T) {
	for _, name := range []string{"process", "record", "tasks", "credentials", "mapping", "schema", "sync", "backup", "version"} {
		findCmd(t, rootCmd, name)
	}
	for _, name := range []string{"list", "delete", "clear"} {
		findCmd(t, tasksCmd, name)
	}
	for _, name := range []string{"save", "show", "clear", "sweep"} {
		findCmd(t, credentialsCmd, name)
	}
	findCmd(t, mappingCmd, "show")
	findCmd(t, mappingCmd, "set")
	findCmd(t, backupCmd, "serve")
}

func TestFlags(t *testing.T) {
	assert.NotNil(t, processCmd.Flags().Lookup("mime"))
	assert.Equal(t, "audio/webm", recordCmd.Flags().Lookup("mime").DefValue)
	assert.Equal(t, "", processCmd.Flags().Lookup("mime").DefValue)

	for _, name := range []string{"speech-key", "workspace-key", "database-id"} {
		assert.NotNil(t, credentialsSaveCmd.Flags().Lookup(name), name)
	}
	for _, name := range []string{"task-name", "priority", "due-date", "category", "status", "status-option"} {
		assert.NotNil(t, mappingSetCmd.Flags().Lookup(name), name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestCredentialsSave_RejectsBeforeOpeningStorage(t *testing.T) {
	t.Cleanup(func() { speechKeyFlag, workspaceKeyFlag, databaseIDFlag = "", "", "" })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	speechKeyFlag, workspaceKeyFlag, databaseIDFlag = "", "", ""
	err := runCredentialsSave(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to save")

	speechKeyFlag, workspaceKeyFlag, databaseIDFlag = "   ", "\t", " "
	err = runCredentialsSave(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to save")

	speechKeyFlag, workspaceKeyFlag, databaseIDFlag = "not-a-key", "", ""
	err = runCredentialsSave(cmd, nil)
	assert.ErrorIs(t, err, credentials.ErrInvalidSpeechKey)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********cdef", mask("sk-abcdef"))
	assert.Equal(t, "***", mask("abc"))
	assert.Contains(t, mask(""), "not set")
}

func TestRenderTasks(t *testing.T) {
	var buf bytes.Buffer
	renderTasks(&buf, nil)
	assert.Contains(t, buf.String(), "No tasks.")

	buf.Reset()
	renderTasks(&buf, []tasks.Record{
		{Description: "Call the dentist", Criticality: "high", DueDate: "2026-10-19", Category: "Health"},
		{Description: "Boodschappen doen", Criticality: "laag"},
	})
	out := buf.String()
	assert.Contains(t, out, "Tasks (2)")
	assert.Contains(t, out, "Call the dentist")
	assert.Contains(t, out, "2026-10-19")
	assert.Contains(t, out, "Health")
	assert.Contains(t, out, "Boodschappen doen")
}

func TestPump(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	t.Run("copies until EOF", func(t *testing.T) {
		r := capture.NewRecorder(capture.Options{MaxDuration: time.Minute, MaxBytes: 1 << 20}, nil)
		sess, err := r.Start("audio/wav")
		require.NoError(t, err)

		data := strings.Repeat("a", chunkSize*2+10)
		require.NoError(t, pump(cmd, sess, strings.NewReader(data)))

		rec, err := r.Stop()
		require.NoError(t, err)
		assert.Len(t, rec.Audio, len(data))
		assert.False(t, rec.Truncated)
	})

	t.Run("stops at the size limit", func(t *testing.T) {
		r := capture.NewRecorder(capture.Options{MaxDuration: time.Minute, MaxBytes: chunkSize + 1}, nil)
		sess, err := r.Start("audio/wav")
		require.NoError(t, err)

		require.NoError(t, pump(cmd, sess, strings.NewReader(strings.Repeat("b", chunkSize*3))))

		rec, err := r.Stop()
		require.NoError(t, err)
		assert.Len(t, rec.Audio, chunkSize)
		assert.True(t, rec.Truncated)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := &cobra.Command{}
		c.SetContext(ctx)

		r := capture.NewRecorder(capture.Options{}, nil)
		sess, err := r.Start("audio/wav")
		require.NoError(t, err)
		defer func() { _ = r.Cancel() }()

		assert.ErrorIs(t, pump(c, sess, strings.NewReader("data")), context.Canceled)
	})
}

func TestTasksList_RecoversFromCorruptStateFile(t *testing.T) {
	home := t.TempDir()
	dataDir := filepath.Join(home, "data")
	t.Setenv("HOME", home)
	t.Setenv("VOICETASK_STORAGE_DIR", dataDir)

	require.NoError(t, os.MkdirAll(dataDir, 0700))
	statePath := filepath.Join(dataDir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"voiceTaskAllTasks": "[{\"task\"`), 0600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"tasks", "list"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "No tasks.")

	moved, err := filepath.Glob(statePath + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestOpenSlots_UnreadableStateFallsBackToMemory(t *testing.T) {
	dir := t.TempDir()
	// A directory where the state file should be cannot be read as a file.
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.Mkdir(path, 0700))

	slots := openSlots(path, nil)
	require.NotNil(t, slots)
	require.NoError(t, slots.Set("k", "v"))
	v, ok, err := slots.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
