package pipeline

import (
	"github.com/fyrsmithlabs/voicetask/internal/credentials"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/fyrsmithlabs/voicetask/internal/workspace"
)

// Session is the state one user session works on: the loaded credentials,
// the task list, the field mapping and the last fetched schema.
type Session struct {
	Credentials credentials.Set
	Tasks       *tasks.Store
	Mapping     workspace.FieldMapping
	// Schema is advisory and may be nil.
	Schema   *workspace.Schema
	Language Language
}

// SpeechKey returns the key used for transcription and extraction.
func (s *Session) SpeechKey() string {
	return s.Credentials.Get(credentials.SpeechAPIKey)
}

// WorkspaceCredentials returns the workspace key and database ID.
func (s *Session) WorkspaceCredentials() workspace.Credentials {
	return workspace.Credentials{
		APIKey:     s.Credentials.Get(credentials.TaskDBAPIKey),
		DatabaseID: s.Credentials.Get(credentials.TaskDBID),
	}
}

// SyncEnabled reports whether extracted tasks are pushed to the workspace.
func (s *Session) SyncEnabled() bool {
	c := s.WorkspaceCredentials()
	return c.APIKey != "" && c.DatabaseID != ""
}

// DeleteTask removes the task at index and returns a confirmation.
func (s *Session) DeleteTask(index int) (string, error) {
	removed, err := s.Tasks.DeleteAt(index)
	if err != nil {
		return "", err
	}
	return DeletedMessage(removed), nil
}

// ClearTasks empties the task list and returns a confirmation.
func (s *Session) ClearTasks() string {
	s.Tasks.Clear()
	return ClearedMessage(s.Language.resolve(""))
}
