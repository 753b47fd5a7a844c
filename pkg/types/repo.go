package types

import (
	"fmt"
	"strings"
)

// Supported source-control remotes
const (
	RemoteGitHub = "github"
	RemoteGitLab = "gitlab"
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Repository identifies one branch of a codebase on a source-control host.
// It is an immutable value: every operation takes it as input, none mutate it.
type Repository struct {
	Remote     string `json:"remote"`
	Repository string `json:"repository"` // owner/name
	Branch     string `json:"branch"`
}

// Validate checks the reference shape. Validation is deliberately shallow:
// the repository must look like owner/name, but whether it exists is the
// API's concern.
func (r Repository) Validate() error {
	if r.Remote == "" {
		return ErrMissingRemote
	}
	if r.Remote != RemoteGitHub && r.Remote != RemoteGitLab {
		return fmt.Errorf("%w: %s", ErrUnknownRemote, r.Remote)
	}
	if r.Repository == "" {
		return ErrMissingRepository
	}
	if !strings.Contains(r.Repository, "/") {
		return fmt.Errorf("%w: %s", ErrRepositoryShape, r.Repository)
	}
	if r.Branch == "" {
		return ErrMissingBranch
	}
	return nil
}

// ID returns the composite identifier the API uses for path segments,
// joining remote, branch, and repository with colons.
func (r Repository) ID() string {
	return r.Remote + ":" + r.Branch + ":" + r.Repository
}

func (r Repository) String() string {
	return r.ID()
}

// Message is one turn of a conversation. Conversations are ordered slices of
// messages, appended to and never edited.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate checks the message role and content.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRole, m.Role)
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
