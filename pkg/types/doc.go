// Package types provides shared type definitions for the Greptile MCP server.
//
// This package defines the domain values that cross package boundaries:
// repository references, conversation messages, query responses, and
// streamed answer chunks.
//
// # Core Types
//
// Repository identifies one branch of a codebase on a source-control host:
//
//	repo := types.Repository{
//	    Remote:     types.RemoteGitHub,
//	    Repository: "golang/go",
//	    Branch:     "master",
//	}
//
// Message is one turn of a conversation; an ordered slice of messages forms
// the conversation sent with a query:
//
//	messages := []types.Message{
//	    {Role: types.RoleUser, Content: "where is the scheduler?"},
//	}
//
// # Answer Shapes
//
// QueryResponse is the non-streaming answer, passed through from the API
// with its wire field names intact:
//
//	{"message": "...", "sources": [...], "session_id": "..."}
//
// StreamChunk is one fragment of a streamed answer, tagged by Kind:
//
//	switch chunk.Kind {
//	case types.ChunkText:     // chunk.Content
//	case types.ChunkCitation: // chunk.File, chunk.Lines
//	case types.ChunkSession:  // chunk.SessionID
//	case types.ChunkOther:    // chunk.Data
//	}
//
// # Validation
//
// Reference types carry Validate methods returning the sentinel errors
// defined in this package:
//
//	if err := repo.Validate(); err != nil {
//	    // errors.Is(err, types.ErrRepositoryShape) etc.
//	}
//
// Validation is shallow: it catches malformed references before a network
// round trip, while existence and permissions stay the API's concern.
package types
