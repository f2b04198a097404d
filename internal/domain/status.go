package domain

type Status int

const (
	StatusIdle Status = iota
	StatusInitializing
	StatusHaveLocalOffer
	StatusHaveRemoteOffer
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusFailed
	StatusClosed
)

var statusNames = map[Status]string{
	StatusIdle:            "idle",
	StatusInitializing:    "initializing",
	StatusHaveLocalOffer:  "have-local-offer",
	StatusHaveRemoteOffer: "have-remote-offer",
	StatusConnecting:      "connecting",
	StatusConnected:       "connected",
	StatusDisconnected:    "disconnected",
	StatusFailed:          "failed",
	StatusClosed:          "closed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether a session in this status can no longer negotiate.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusClosed
}
