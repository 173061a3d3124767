package topology

import (
	"github.com/google/uuid"
	"strings"
)

const DefaultLobbyPrefix = "mylobby"

// LobbyID names the one-match lobby that the lobby process hosts and both
// clients join.
type LobbyID string

func NewLobbyID(prefix string) LobbyID {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultLobbyPrefix
	}
	return LobbyID(prefix + "-" + uuid.NewString())
}

func (id LobbyID) String() string {
	return string(id)
}
