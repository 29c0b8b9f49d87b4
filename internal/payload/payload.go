// Package payload decodes GitHub webhook bodies into a generic Payload and
// derives event-specific views from it.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/go-github/v66/github"
)

// Action is the "action" field of a webhook body. Not every event carries one.
type Action string

const (
	ActionCreated   Action = "created"
	ActionEdited    Action = "edited"
	ActionDeleted   Action = "deleted"
	ActionOpened    Action = "opened"
	ActionClosed    Action = "closed"
	ActionReopened  Action = "reopened"
	ActionSubmitted Action = "submitted"
)

var (
	ErrInvalidBody  = errors.New("payload is not a JSON object")
	ErrMissingField = errors.New("payload field missing")
)

// Payload is the generic representation shared by all webhook events.
// Optional fields are only present when they apply to the received event.
type Payload struct {
	Action       Action               `json:"action,omitempty"`
	Sender       *github.User         `json:"sender"`
	Repository   *github.Repository   `json:"repository"`
	Comment      *github.IssueComment `json:"comment,omitempty"`
	Issue        *github.Issue        `json:"issue,omitempty"`
	PullRequest  *github.PullRequest  `json:"pull_request,omitempty"`
	Installation *github.Installation `json:"installation,omitempty"`
}

// Decode parses a raw webhook body. Fields outside the recognized set are
// ignored; sender and repository are required.
func Decode(body []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidBody
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if p.Sender == nil {
		return nil, fmt.Errorf("%w: sender", ErrMissingField)
	}
	if p.Repository == nil {
		return nil, fmt.Errorf("%w: repository", ErrMissingField)
	}

	return &p, nil
}

// RepositoryName returns the repository's full name, falling back to its short name.
func (p *Payload) RepositoryName() string {
	if p == nil || p.Repository == nil {
		return ""
	}
	if name := p.Repository.GetFullName(); name != "" {
		return name
	}
	return p.Repository.GetName()
}
