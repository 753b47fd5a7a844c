package types

// QueryResponse is the non-streaming answer payload. Field names mirror the
// API wire format exactly; the client passes the object through without
// renaming.
type QueryResponse struct {
	Message   string   `json:"message"`
	Sources   []Source `json:"sources,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Source is one code location backing an answer.
type Source struct {
	Repository string `json:"repository"`
	Remote     string `json:"remote,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Filepath   string `json:"filepath,omitempty"`
	Linestart  int    `json:"linestart,omitempty"`
	Lineend    int    `json:"lineend,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// Validate checks a source's line range when one is present.
func (s *Source) Validate() error {
	if s.Linestart < 0 || s.Lineend < 0 {
		return ErrNegativeLine
	}
	if s.Lineend != 0 && s.Linestart > s.Lineend {
		return ErrInvertedLineRange
	}
	return nil
}
