package model

import "time"

// ApprovalStatus is the lifecycle of one ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// ApprovalRequest lives only inside a RunSession until resolved or the
// owning Run terminates.
type ApprovalRequest struct {
	CallID       string         `json:"callId"`
	RunID        string         `json:"runId"`
	ToolPath     string         `json:"toolPath"`
	InputPreview string         `json:"inputPreview,omitempty"`
	RequesterID  string         `json:"requesterId"`
	Title        string         `json:"title,omitempty"`
	Details      string         `json:"details,omitempty"`
	Link         string         `json:"link,omitempty"`
	CodeSnippet  string         `json:"codeSnippet,omitempty"`
	Status       ApprovalStatus `json:"status"`
	Reason       string         `json:"reason,omitempty"`
	ReviewerID   string         `json:"reviewerId,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	ResolvedAt   *time.Time     `json:"resolvedAt,omitempty"`
}

// View projects the redacted, wire-facing shape carried on events.
func (a *ApprovalRequest) View() *ApprovalView {
	if a == nil {
		return nil
	}
	return &ApprovalView{
		CallID:       a.CallID,
		ToolPath:     a.ToolPath,
		Title:        a.Title,
		Details:      a.Details,
		Link:         a.Link,
		InputPreview: a.InputPreview,
		CodeSnippet:  a.CodeSnippet,
	}
}

// ResolveApprovalOutcome is the result of a resolveApproval call (§4.E).
type ResolveApprovalOutcome string

const (
	ResolveResolved     ResolveApprovalOutcome = "resolved"
	ResolveNotFound     ResolveApprovalOutcome = "not_found"
	ResolveUnauthorized ResolveApprovalOutcome = "unauthorized"
)

// CallContext carries per-call identity and deadline information through
// B -> E -> C -> D, per §9's "explicit service interfaces... propagate an
// execution context... not a global" note.
type CallContext struct {
	RunID       string
	WorkspaceID string
	ActorID     string
	ClientID    string
	CallID      string
	ToolPath    string
	Deadline    time.Time
}
