package toolmanager

import (
	"sync/atomic"

	"github.com/Cyclone1070/coda/internal/tool"
)

// ApprovalRequest describes a call waiting for sign-off.
type ApprovalRequest struct {
	Tool     string
	Category tool.Category
	Args     map[string]any
	Preview  string
}

// ApprovalDecision is the user's answer. TrustForSession only has effect
// for approval_required tools.
type ApprovalDecision struct {
	Approved        bool
	TrustForSession bool
}

// ApprovalState records whether approval_required tools have been trusted
// for the rest of the session. It starts untrusted.
type ApprovalState struct {
	approved atomic.Bool
}

// Approved reports whether the session is trusted.
func (s *ApprovalState) Approved() bool {
	return s.approved.Load()
}

// Elevate applies a decision for a tool of category cat. Only an approved,
// session-trusting answer about an approval_required tool elevates.
func (s *ApprovalState) Elevate(cat tool.Category, d ApprovalDecision) bool {
	if !d.Approved || !d.TrustForSession || !cat.CanTrustForSession() {
		return false
	}
	s.approved.Store(true)
	return true
}

// Reset returns the session to untrusted.
func (s *ApprovalState) Reset() {
	s.approved.Store(false)
}
