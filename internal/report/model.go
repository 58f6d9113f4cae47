// Package report summarizes captured encapsulation traffic: which commands,
// CIP services and object paths were exercised and how the target replied.
package report

// Coverage is the summary of one capture.
type Coverage struct {
	GeneratedAt string `json:"generated_at"`
	Source      string `json:"source"`
	Frames      int    `json:"frames"`
	Malformed   int    `json:"malformed"`
	// Commands counts frames per encapsulation command.
	Commands map[string]int `json:"commands"`
	// EncapStatuses counts non-zero encapsulation statuses.
	EncapStatuses map[string]int `json:"encap_statuses,omitempty"`
	// Services is keyed by request service code, e.g. "0x0E".
	Services map[string]*ServiceCount `json:"services"`
	// Requests counts top-level requests by "service path".
	Requests map[string]int `json:"requests"`
	// Embedded counts requests carried inside Unconnected Send or
	// Multiple Service Packet.
	Embedded map[string]int `json:"embedded,omitempty"`
	// Statuses counts general statuses of error replies.
	Statuses map[string]int `json:"statuses,omitempty"`
	// Invalid counts requests whose shape the service registry rejects.
	Invalid map[string]int `json:"invalid,omitempty"`
}

// ServiceCount tallies one service code.
type ServiceCount struct {
	Name     string `json:"name"`
	Requests int    `json:"requests"`
	Replies  int    `json:"replies"`
	Errors   int    `json:"errors"`
}

func newCoverage(source string) *Coverage {
	return &Coverage{
		Source:        source,
		Commands:      make(map[string]int),
		EncapStatuses: make(map[string]int),
		Services:      make(map[string]*ServiceCount),
		Requests:      make(map[string]int),
		Embedded:      make(map[string]int),
		Statuses:      make(map[string]int),
		Invalid:       make(map[string]int),
	}
}
