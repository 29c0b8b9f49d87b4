package payload

import (
	"fmt"

	"github.com/google/go-github/v66/github"
)

// IssueCommentEvent is the issue_comment view of a Payload. All fields are set.
type IssueCommentEvent struct {
	Action     Action
	Sender     *github.User
	Repository *github.Repository
	Comment    *github.IssueComment
	Issue      *github.Issue
}

// IssuesEvent is the issues view of a Payload.
type IssuesEvent struct {
	Action     Action
	Sender     *github.User
	Repository *github.Repository
	Issue      *github.Issue
}

// PullRequestEvent is the pull_request view of a Payload.
type PullRequestEvent struct {
	Action      Action
	Sender      *github.User
	Repository  *github.Repository
	PullRequest *github.PullRequest
}

// AsIssueComment converts p, failing with ErrMissingField when the comment,
// issue or action is absent.
func (p *Payload) AsIssueComment() (*IssueCommentEvent, error) {
	if err := p.require(map[string]bool{
		"action":  p.Action != "",
		"comment": p.Comment != nil,
		"issue":   p.Issue != nil,
	}); err != nil {
		return nil, err
	}
	return &IssueCommentEvent{
		Action:     p.Action,
		Sender:     p.Sender,
		Repository: p.Repository,
		Comment:    p.Comment,
		Issue:      p.Issue,
	}, nil
}

// AsIssues converts p, failing with ErrMissingField when the issue or action is absent.
func (p *Payload) AsIssues() (*IssuesEvent, error) {
	if err := p.require(map[string]bool{
		"action": p.Action != "",
		"issue":  p.Issue != nil,
	}); err != nil {
		return nil, err
	}
	return &IssuesEvent{
		Action:     p.Action,
		Sender:     p.Sender,
		Repository: p.Repository,
		Issue:      p.Issue,
	}, nil
}

// AsPullRequest converts p, failing with ErrMissingField when the pull request
// or action is absent.
func (p *Payload) AsPullRequest() (*PullRequestEvent, error) {
	if err := p.require(map[string]bool{
		"action":       p.Action != "",
		"pull_request": p.PullRequest != nil,
	}); err != nil {
		return nil, err
	}
	return &PullRequestEvent{
		Action:      p.Action,
		Sender:      p.Sender,
		Repository:  p.Repository,
		PullRequest: p.PullRequest,
	}, nil
}

// require checks the fields common to every view plus the given ones.
// Field names are checked in a fixed order so the reported name is stable.
func (p *Payload) require(fields map[string]bool) error {
	fields["sender"] = p.Sender != nil
	fields["repository"] = p.Repository != nil

	for _, name := range []string{"sender", "repository", "action", "comment", "issue", "pull_request"} {
		present, checked := fields[name]
		if checked && !present {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}
