package signal

import "github.com/dkeye/Duet/internal/domain"

// Feed message types.
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
	MessagePing     = "ping"
	MessagePong     = "pong"
)

// Message is one frame on the record feed.
type Message struct {
	Type   string             `json:"type"`
	Record *domain.CallRecord `json:"record,omitempty"`
	Error  string             `json:"error,omitempty"`
}
