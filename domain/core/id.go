package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	GroupID    ID
	WorkflowID ID
	RunID      ID
)

// String conversions for domain IDs
func (id GroupID) String() string    { return ID(id).String() }
func (id WorkflowID) String() string { return ID(id).String() }
func (id RunID) String() string      { return ID(id).String() }

// IsEmpty checks for domain IDs
func (id GroupID) IsEmpty() bool    { return ID(id).IsEmpty() }
func (id WorkflowID) IsEmpty() bool { return ID(id).IsEmpty() }

// ParseGroupID parses a string into GroupID
func ParseGroupID(s string) (GroupID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("group ID cannot be empty")
	}
	return GroupID(s), nil
}

// ParseWorkflowID parses a string into WorkflowID
func ParseWorkflowID(s string) (WorkflowID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("workflow ID cannot be empty")
	}
	return WorkflowID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}
