package tui

import "github.com/merlian/merlian/pkg/store"

// JobUpdateMsg carries the latest persisted job record
type JobUpdateMsg struct {
	Job *store.Job
}

// ErrorMsg represents an error while polling
type ErrorMsg struct {
	Err error
}

// TickMsg triggers the next poll
type TickMsg struct{}
