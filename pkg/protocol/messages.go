// Package protocol defines the JSON messages exchanged with the game host.
package protocol

import (
	"encoding/json"

	"github.com/bastionmc/castles/pkg/core"
)

// Inbound message types, sent by the host.
const (
	TypeActorJoin     = "actor_join"
	TypeActorQuit     = "actor_quit"
	TypeFaction       = "faction"
	TypeFactionRemove = "faction_remove"
	TypeMembership    = "membership"
	TypeSelection     = "selection"
	TypeMove          = "move"
	TypeTeleport      = "teleport"
	TypeDamage        = "damage"
	TypeBlockBreak    = "block_break"
	TypeCommand       = "command"
)

// Outbound message types, sent to the host.
const (
	TypeBroadcast       = "broadcast"
	TypeMessage         = "message"
	TypeSetBlock        = "set_block"
	TypeGetBlock        = "get_block"
	TypeDispatchCommand = "dispatch_command"
	TypeTeleportActor   = "teleport_actor"
	// TypeSync asks the host to resend actors, factions and memberships.
	TypeSync = "sync"
)

// TypeReply answers a message that carried an ID, in either direction.
const TypeReply = "reply"

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type string `json:"type"`
	// ID is set when the sender expects a reply.
	ID      string          `json:"id,omitempty"`
	Actor   string          `json:"actor,omitempty"`
	Args    []string        `json:"args,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the payload of a TypeReply envelope.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ActorPayload announces a connected actor.
type ActorPayload struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Location    core.Position `json:"location"`
	Permissions []string      `json:"permissions"`
}

// FactionPayload creates or updates a faction.
type FactionPayload struct {
	ID            string `json:"id"`
	Tag           string `json:"tag"`
	ComparisonTag string `json:"comparisonTag"`
}

// MembershipPayload moves an actor into a faction. An empty Faction means the
// actor left its faction.
type MembershipPayload struct {
	Actor   string `json:"actor"`
	Faction string `json:"faction"`
}

// SelectionPayload carries the two corners of an actor's region selection.
type SelectionPayload struct {
	A core.Position `json:"a"`
	B core.Position `json:"b"`
}

// MovePayload is sent for movement and teleports.
type MovePayload struct {
	From core.Position `json:"from"`
	To   core.Position `json:"to"`
}

// BlockPayload identifies a block, with its material when known.
type BlockPayload struct {
	Position core.Position `json:"position"`
	Material core.Material `json:"material,omitempty"`
}

// VetoResult answers teleport and block_break messages.
type VetoResult struct {
	Cancel bool `json:"cancel"`
}

// TextPayload carries a chat line or a console command.
type TextPayload struct {
	Text string `json:"text"`
}

// TeleportPayload asks the host to move an actor.
type TeleportPayload struct {
	Destination core.Position `json:"destination"`
}
