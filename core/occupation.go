package core

import (
	"fmt"
	"strings"
	"time"
)

type JoinMethodKind byte

const (
	Hold JoinMethodKind = iota
	Kick
	Forward
	Lobby
)

func (kind JoinMethodKind) String() string {
	var text string
	switch kind {
	case Hold:
		text = "hold"
	case Kick:
		text = "kick"
	case Forward:
		text = "forward"
	case Lobby:
		text = "lobby"
	}
	return text
}

func ParseJoinMethodKind(s string) (JoinMethodKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hold":
		return Hold, nil
	case "kick":
		return Kick, nil
	case "forward":
		return Forward, nil
	case "lobby":
		return Lobby, nil
	}
	return Hold, fmt.Errorf("unknown join method %q", s)
}

// JoinMethod is one way of keeping a player busy while the server is not
// running. Only the fields belonging to Kind are used.
type JoinMethod struct {
	Kind JoinMethodKind

	// hold and lobby
	Timeout time.Duration

	// kick
	StartingMessage string
	StoppingMessage string

	// forward
	Address     string
	SendProxyV2 bool

	// lobby
	LobbyMessage string
	ReadySound   string
}

type OccupationPlan []JoinMethod

func (plan OccupationPlan) Has(kind JoinMethodKind) bool {
	for _, method := range plan {
		if method.Kind == kind {
			return true
		}
	}
	return false
}

func (plan OccupationPlan) String() string {
	names := make([]string, len(plan))
	for i, method := range plan {
		names[i] = method.Kind.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
