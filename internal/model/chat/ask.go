package chat

import (
	"bytes"
	"encoding/json"
)

// AskRequest is the body of POST /api/user/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// CaseContext is one supporting case as the backend returns it.
type CaseContext struct {
	Ask        string `json:"ask"`
	Answer     string `json:"answer"`
	Department string `json:"department,omitempty"`
}

// AskResponse is the backend answer together with its supporting cases.
type AskResponse struct {
	Answer  string        `json:"answer"`
	Context []CaseContext `json:"context,omitempty"`
}

// UnmarshalJSON accepts partial backend payloads: a missing or null answer
// reads as "", and a context that is not an array reads as no cases.
func (r *AskResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Answer  *string         `json:"answer"`
		Context json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = AskResponse{}
	if raw.Answer != nil {
		r.Answer = *raw.Answer
	}
	if trimmed := bytes.TrimSpace(raw.Context); len(trimmed) > 0 && trimmed[0] == '[' {
		var cases []CaseContext
		if err := json.Unmarshal(trimmed, &cases); err == nil {
			r.Context = cases
		}
	}
	return nil
}

// ReferenceCases maps backend context to positional reference cases.
// An empty context yields nil so "has references" is a single length check.
func (r AskResponse) ReferenceCases() []ReferenceCase {
	if len(r.Context) == 0 {
		return nil
	}
	cases := make([]ReferenceCase, 0, len(r.Context))
	for i, item := range r.Context {
		cases = append(cases, ReferenceCase{
			ID:         i + 1,
			Question:   item.Ask,
			Answer:     item.Answer,
			Department: item.Department,
		})
	}
	return cases
}
