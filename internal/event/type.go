package event

import (
	"fmt"
	"sort"
	"sync"
)

// Type identifies a webhook category as sent in the X-GitHub-Event header.
type Type string

const (
	Ping                     Type = "ping"
	Push                     Type = "push"
	Create                   Type = "create"
	Delete                   Type = "delete"
	Issues                   Type = "issues"
	IssueComment             Type = "issue_comment"
	PullRequest              Type = "pull_request"
	PullRequestReview        Type = "pull_request_review"
	PullRequestReviewComment Type = "pull_request_review_comment"
	Release                  Type = "release"
	WorkflowRun              Type = "workflow_run"
	CheckRun                 Type = "check_run"
	CheckSuite               Type = "check_suite"
	Star                     Type = "star"
	Fork                     Type = "fork"
)

var (
	typesMu sync.RWMutex
	known   = map[Type]struct{}{
		Ping: {}, Push: {}, Create: {}, Delete: {}, Issues: {}, IssueComment: {},
		PullRequest: {}, PullRequestReview: {}, PullRequestReviewComment: {},
		Release: {}, WorkflowRun: {}, CheckRun: {}, CheckSuite: {}, Star: {}, Fork: {},
	}
)

func (t Type) String() string { return string(t) }

// ParseType maps a header value onto a recognized Type.
func ParseType(s string) (Type, error) {
	typesMu.RLock()
	defer typesMu.RUnlock()

	t := Type(s)
	if _, ok := known[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// RegisterType adds a custom event name to the recognized set.
// Call it during startup, before any handler registration that uses it.
func RegisterType(name string) (Type, error) {
	if name == "" {
		return "", fmt.Errorf("event type name is empty")
	}
	typesMu.Lock()
	defer typesMu.Unlock()

	t := Type(name)
	known[t] = struct{}{}
	return t, nil
}

// KnownTypes returns the recognized event types in sorted order.
func KnownTypes() []Type {
	typesMu.RLock()
	defer typesMu.RUnlock()

	out := make([]Type, 0, len(known))
	for t := range known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
