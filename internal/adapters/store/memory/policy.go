package memory

import "fmt"

// WritePolicy decides what happens to a second offer or answer write.
type WritePolicy int

const (
	// FirstWriteWins silently ignores later writes.
	FirstWriteWins WritePolicy = iota
	// LastWriteWins replaces the stored description.
	LastWriteWins
)

func (p WritePolicy) String() string {
	switch p {
	case LastWriteWins:
		return "last_write_wins"
	default:
		return "first_write_wins"
	}
}

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch s {
	case "", "first_write_wins":
		return FirstWriteWins, nil
	case "last_write_wins":
		return LastWriteWins, nil
	default:
		return FirstWriteWins, fmt.Errorf("unknown write policy %q", s)
	}
}

// allowOverwrite reports whether an already-set description may be replaced.
func (p WritePolicy) allowOverwrite() bool {
	return p == LastWriteWins
}
