package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no saved state exists under a name.
var ErrNotFound = errors.New("session not found")

// Store persists saved agent state by name.
type Store interface {
	Save(name string, data []byte) error
	Load(name string) ([]byte, error)
	List() ([]string, error)
}

// nameTimeFormat is the timestamp layout of default save names.
const nameTimeFormat = "2006-01-02_15-04-05"

// DefaultName returns the save name used when none is given:
// "<agent>@<timestamp>".
func DefaultName(agent string, now time.Time) string {
	return fmt.Sprintf("%s@%s", agent, now.Format(nameTimeFormat))
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("session: empty name")
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return fmt.Errorf("session: invalid name %q", name)
	}
	return nil
}
