package backend

import (
	"fmt"

	"github.com/erg0nix/chorus/internal/core"
)

type ValidationError struct {
	Index        int
	CurrentRole  core.Role
	PreviousRole core.Role
	Message      string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateMessages checks a request before it is sent: the list is non-empty, every role is
// known, user and assistant turns alternate (system messages may appear anywhere), and the
// last conversational message is from the user.
func ValidateMessages(messages []core.Message) error {
	if len(messages) == 0 {
		return &ValidationError{Message: "request has no messages"}
	}

	var prevRole core.Role
	prevIndex := -1

	for i, msg := range messages {
		if !msg.Role.Valid() {
			return &ValidationError{
				Index:       i,
				CurrentRole: msg.Role,
				Message:     fmt.Sprintf("unknown role %q at index %d", msg.Role, i),
			}
		}

		if msg.Role == core.RoleSystem {
			continue
		}

		if msg.Role == prevRole {
			return &ValidationError{
				Index:        i,
				CurrentRole:  msg.Role,
				PreviousRole: prevRole,
				Message:      fmt.Sprintf("consecutive %s messages at index %d and %d", msg.Role, prevIndex, i),
			}
		}

		prevRole = msg.Role
		prevIndex = i
	}

	if prevRole != core.RoleUser {
		return &ValidationError{
			Index:       prevIndex,
			CurrentRole: prevRole,
			Message:     "request must end with a user message",
		}
	}

	return nil
}
