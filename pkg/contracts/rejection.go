package contracts

import (
	"errors"
	"fmt"
)

// RejectionKind is the closed set of reasons a decision can be refused.
type RejectionKind string

const (
	KindNone                    RejectionKind = ""
	KindInvalidOperationType    RejectionKind = "InvalidOperationType"
	KindNoHealthyRoute          RejectionKind = "NoHealthyRoute"
	KindComplianceViolation     RejectionKind = "ComplianceViolation"
	KindBudgetExceeded          RejectionKind = "BudgetExceeded"
	KindEmergencyShutdownActive RejectionKind = "EmergencyShutdownActive"
)

// Sentinel errors, one per rejection kind, for use with errors.Is.
var (
	ErrInvalidOperationType    = errors.New("invalid operation type")
	ErrNoHealthyRoute          = errors.New("no healthy route")
	ErrComplianceViolation     = errors.New("compliance violation")
	ErrBudgetExceeded          = errors.New("budget exceeded")
	ErrEmergencyShutdownActive = errors.New("emergency shutdown active")
)

// Sentinel returns the sentinel error for k, or nil for KindNone.
func (k RejectionKind) Sentinel() error {
	switch k {
	case KindInvalidOperationType:
		return ErrInvalidOperationType
	case KindNoHealthyRoute:
		return ErrNoHealthyRoute
	case KindComplianceViolation:
		return ErrComplianceViolation
	case KindBudgetExceeded:
		return ErrBudgetExceeded
	case KindEmergencyShutdownActive:
		return ErrEmergencyShutdownActive
	}
	return nil
}

// RejectionError carries a kind plus a human readable detail.
type RejectionError struct {
	Kind   RejectionKind
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches the sentinel of the same kind.
func (e *RejectionError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && s == target
}

// KindOf extracts the rejection kind from err, or KindNone.
func KindOf(err error) RejectionKind {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNone
}
