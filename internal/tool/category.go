package tool

import "fmt"

// Category is the risk tier of a tool. It decides whether an invocation
// needs explicit user sign-off.
type Category int

const (
	// Safe tools never prompt.
	Safe Category = iota
	// ApprovalRequired tools prompt unless the user trusted them for the session.
	ApprovalRequired
	// Dangerous tools always prompt.
	Dangerous
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case Safe:
		return "safe"
	case ApprovalRequired:
		return "approval_required"
	case Dangerous:
		return "dangerous"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// RequiresApproval reports whether an invocation needs a prompt, given
// whether the session has already been trusted.
func (c Category) RequiresApproval(sessionApproved bool) bool {
	switch c {
	case Safe:
		return false
	case ApprovalRequired:
		return !sessionApproved
	case Dangerous:
		return true
	default:
		return true
	}
}

// CanTrustForSession reports whether a "trust for session" answer on this
// category may elevate the session approval.
func (c Category) CanTrustForSession() bool {
	switch c {
	case ApprovalRequired:
		return true
	case Safe, Dangerous:
		return false
	default:
		return false
	}
}

// ParseCategory converts a config string into a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "safe":
		return Safe, nil
	case "", "approval_required":
		return ApprovalRequired, nil
	case "dangerous":
		return Dangerous, nil
	default:
		return ApprovalRequired, fmt.Errorf("unknown tool category %q", s)
	}
}
