// Package bridge connects the service to the game host over a WebSocket.
//
// Inbound host events are handed to a Handler; outbound calls implement the
// core collaborator ports (BlockStore, Broadcaster, CommandExecutor and
// Teleporter). Writes are fire-and-forget. Only block reads wait for a reply.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bastionmc/castles/pkg/core"
	"github.com/bastionmc/castles/pkg/protocol"
)

// ErrTimeout is returned when the host does not answer a request in time.
var ErrTimeout = errors.New("host request timed out")

// Config holds bridge configuration.
type Config struct {
	URL            string
	Secret         string
	RequestTimeout time.Duration
}

// Handler processes an inbound envelope. When the envelope carries an ID, the
// result (or error) is sent back to the host as a reply.
type Handler func(env protocol.Envelope) (any, error)

// Bridge is the host connection.
type Bridge struct {
	cfg     Config
	conn    *connection
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan protocol.Reply
}

// New creates a bridge. Call Connect to dial the host.
func New(cfg Config, handler Handler, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	b := &Bridge{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan protocol.Reply),
	}
	b.conn = newConnection(logger, b.receive, b.resync)
	return b
}

// Connect dials the host and asks it to resend its state.
func (b *Bridge) Connect() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the host. Pending requests fail with ErrTimeout.
func (b *Bridge) Close() error {
	return b.conn.close()
}

func (b *Bridge) resync() {
	if err := b.post(protocol.TypeSync, "", nil); err != nil {
		b.logger.Warn("requesting host sync", "error", err)
	}
}

// Broadcast sends a line to every connected actor.
func (b *Bridge) Broadcast(message string) {
	if err := b.post(protocol.TypeBroadcast, "", protocol.TextPayload{Text: message}); err != nil {
		b.logger.Warn("broadcast", "error", err)
	}
}

// Send sends a line to one actor.
func (b *Bridge) Send(actor core.Actor, message string) {
	if err := b.post(protocol.TypeMessage, actor.ID(), protocol.TextPayload{Text: message}); err != nil {
		b.logger.Warn("send message", "actor", actor.ID(), "error", err)
	}
}

// Execute runs a console command on the host.
func (b *Bridge) Execute(command string) {
	if err := b.post(protocol.TypeDispatchCommand, "", protocol.TextPayload{Text: command}); err != nil {
		b.logger.Warn("dispatch command", "command", command, "error", err)
	}
}

// Teleport moves an actor.
func (b *Bridge) Teleport(actor core.Actor, dest core.Position) {
	if err := b.post(protocol.TypeTeleportActor, actor.ID(), protocol.TeleportPayload{Destination: dest}); err != nil {
		b.logger.Warn("teleport", "actor", actor.ID(), "error", err)
	}
}

// SetMaterial writes a block.
func (b *Bridge) SetMaterial(pos core.Position, material core.Material) {
	if err := b.post(protocol.TypeSetBlock, "", protocol.BlockPayload{Position: pos, Material: material}); err != nil {
		b.logger.Warn("set block", "position", pos.String(), "error", err)
	}
}

// Material reads a block from the host. It returns an empty material when the
// host does not answer; such a block never matches a wall scan.
// Must not be called from a Handler, which runs on the read goroutine.
func (b *Bridge) Material(pos core.Position) core.Material {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
	defer cancel()

	var block protocol.BlockPayload
	if err := b.request(ctx, protocol.TypeGetBlock, protocol.BlockPayload{Position: pos}, &block); err != nil {
		b.logger.Warn("get block", "position", pos.String(), "error", err)
		return ""
	}
	return block.Material
}

// request sends a message with a fresh ID and decodes the reply into out.
func (b *Bridge) request(ctx context.Context, msgType string, payload, out any) error {
	id := uuid.NewString()
	ch := make(chan protocol.Reply, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	data, err := marshalEnvelope(protocol.Envelope{Type: msgType, ID: id}, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return fmt.Errorf("%s: host error: %s", msgType, reply.Error)
		}
		if out != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, out); err != nil {
				return fmt.Errorf("%s: decoding reply: %w", msgType, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", msgType, ErrTimeout)
	case <-b.conn.done:
		return fmt.Errorf("%s: %w", msgType, ErrTimeout)
	}
}

// post sends a message without waiting for an answer.
func (b *Bridge) post(msgType, actor string, payload any) error {
	data, err := marshalEnvelope(protocol.Envelope{Type: msgType, Actor: actor}, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// receive routes one inbound frame.
func (b *Bridge) receive(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Debug("Malformed host message", "raw", string(data), "error", err)
		return
	}

	if env.Type == protocol.TypeReply {
		b.deliver(env)
		return
	}

	if b.handler == nil {
		return
	}
	result, err := b.handler(env)
	if err != nil {
		b.logger.Debug("host event rejected", "type", env.Type, "actor", env.Actor, "error", err)
	}
	if env.ID == "" {
		return
	}

	reply := protocol.Reply{}
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			reply.Error = mErr.Error()
		} else {
			reply.Result = raw
		}
	}
	out, mErr := marshalEnvelope(protocol.Envelope{Type: protocol.TypeReply, ID: env.ID}, reply)
	if mErr != nil {
		b.logger.Warn("encoding reply", "type", env.Type, "error", mErr)
		return
	}
	b.conn.send(out)
}

func (b *Bridge) deliver(env protocol.Envelope) {
	var reply protocol.Reply
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &reply); err != nil {
			reply.Error = fmt.Sprintf("decoding reply: %v", err)
		}
	}

	b.mu.Lock()
	ch, ok := b.pending[env.ID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("Reply for unknown request", "id", env.ID)
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

// marshalEnvelope fills the envelope payload and encodes it.
func marshalEnvelope(env protocol.Envelope, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", env.Type, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return data, nil
}
