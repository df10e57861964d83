package enums

import "fmt"

// VerificationStatus is the review state of an organiser or charity.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

var validVerificationStatuses = []VerificationStatus{
	VerificationPending,
	VerificationVerified,
	VerificationRejected,
}

func (s VerificationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known VerificationStatus.
func (s VerificationStatus) IsValid() bool {
	for _, candidate := range validVerificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// SortRank orders review queues: pending first, then verified, then rejected.
func (s VerificationStatus) SortRank() int {
	switch s {
	case VerificationPending:
		return 0
	case VerificationVerified:
		return 1
	case VerificationRejected:
		return 2
	}
	return 3
}

// ParseVerificationStatus converts raw input into a VerificationStatus.
func ParseVerificationStatus(value string) (VerificationStatus, error) {
	for _, candidate := range validVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification status %q", value)
}

// VerificationAction is an admin decision on an organiser or charity.
type VerificationAction string

const (
	VerificationActionVerify   VerificationAction = "verify"
	VerificationActionUnverify VerificationAction = "unverify"
	VerificationActionReject   VerificationAction = "reject"
	VerificationActionRestore  VerificationAction = "restore"
)

var validVerificationActions = []VerificationAction{
	VerificationActionVerify,
	VerificationActionUnverify,
	VerificationActionReject,
	VerificationActionRestore,
}

// Target returns the status and verified flag an action produces.
func (a VerificationAction) Target() (VerificationStatus, bool) {
	switch a {
	case VerificationActionVerify:
		return VerificationVerified, true
	case VerificationActionReject:
		return VerificationRejected, false
	default:
		return VerificationPending, false
	}
}

// ParseVerificationAction converts raw input into a VerificationAction.
func ParseVerificationAction(value string) (VerificationAction, error) {
	for _, candidate := range validVerificationActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification action %q", value)
}
