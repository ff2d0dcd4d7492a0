// Package kj defines the session types shared by the kj command line assistant.
// A session is persisted as one JSON document per conversation, see package session.
package kj

import "strconv"

// Name is the command name the assistant is invoked with.
const Name = "kj"

// Turn is one invocation of the assistant: the command it was run with,
// what arrived on its stdin, and the model's reply.
type Turn struct {
	// Command is the shell command line that invoked the assistant.
	Command string `json:"command" yaml:"command"`
	// Stdin is the text piped or typed into the assistant.
	Stdin string `json:"stdin" yaml:"stdin"`
	// Response is the model's reply. It grows while the reply streams in.
	Response string `json:"response" yaml:"response"`
}

// Session is an ordered, persisted sequence of turns sharing one system prompt.
type Session struct {
	// ID is unique per storage directory and embedded in the file name.
	ID int `json:"id" yaml:"id"`
	// SystemPrompt is prepended to every rendered prompt. nil means the
	// built-in default prompt is used.
	SystemPrompt *string `json:"system_prompt" yaml:"system_prompt"`
	// StorageDirectory is the directory the session file lives in.
	StorageDirectory string `json:"storage_directory" yaml:"storage_directory"`
	// Turns holds the conversation in order.
	Turns []Turn `json:"turns" yaml:"turns"`
	// Context is reserved model state. It is carried over verbatim and never interpreted.
	Context []int `json:"context" yaml:"context"`
}

// FileName returns the session's file name inside its storage directory.
func (s *Session) FileName() string {
	return FileName(s.ID)
}

// FileName returns the file name used for the session with the given id.
func FileName(id int) string {
	return "session." + strconv.Itoa(id) + ".json"
}

// LastTurn returns the most recent turn, or nil for an empty session.
func (s *Session) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}
