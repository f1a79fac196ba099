package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/me/ossim/pkg/model"
)

type envelope struct {
	poll  *model.PollMessage
	reply *model.ReplyMessage
}

// Mailbox is an in-memory multiplexed message channel. Each address owns one
// inbox; a message is only ever observed by the receiver it is addressed to.
type Mailbox struct {
	mu    sync.Mutex
	boxes map[model.TaskID]chan envelope
	done  chan struct{}
	once  sync.Once
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		boxes: make(map[model.TaskID]chan envelope),
		done:  make(chan struct{}),
	}
}

// Open registers an inbox for addr.
func (m *Mailbox) Open(addr model.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	if _, ok := m.boxes[addr]; ok {
		return fmt.Errorf("ipc: mailbox %d already open", addr)
	}
	// One pending message per address: the coordinator never has more than
	// one poll outstanding.
	m.boxes[addr] = make(chan envelope, 1)
	return nil
}

// Remove drops the inbox for addr. Later sends to it are undeliverable.
func (m *Mailbox) Remove(addr model.TaskID) {
	m.mu.Lock()
	delete(m.boxes, addr)
	m.mu.Unlock()
}

// Close shuts the mailbox down and wakes every blocked caller.
func (m *Mailbox) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *Mailbox) box(addr model.TaskID) (chan envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}
	b, ok := m.boxes[addr]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUndeliverable, addr)
	}
	return b, nil
}

func (m *Mailbox) deliver(ctx context.Context, to model.TaskID, env envelope) error {
	b, err := m.box(to)
	if err != nil {
		return err
	}
	select {
	case b <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func (m *Mailbox) receive(ctx context.Context, addr model.TaskID) (envelope, error) {
	b, err := m.box(addr)
	if err != nil {
		return envelope{}, err
	}
	select {
	case env := <-b:
		return env, nil
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	case <-m.done:
		return envelope{}, ErrClosed
	}
}

// Coordinator opens the coordinator's inbox and returns its Channel.
func (m *Mailbox) Coordinator() (*MailboxChannel, error) {
	if err := m.Open(CoordinatorAddr); err != nil {
		return nil, err
	}
	return &MailboxChannel{mailbox: m}, nil
}

// Endpoint returns the task-side view for id. The inbox must already be open.
func (m *Mailbox) Endpoint(id model.TaskID) *MailboxEndpoint {
	return &MailboxEndpoint{mailbox: m, id: id}
}

// MailboxChannel is the coordinator's Channel over a Mailbox.
type MailboxChannel struct {
	mailbox *Mailbox
}

func (c *MailboxChannel) Send(ctx context.Context, msg model.PollMessage) error {
	if msg.Target == model.NoTask {
		return &model.ProtocolError{Op: "send poll", Err: errors.New("poll has no target")}
	}
	if err := c.mailbox.deliver(ctx, msg.Target, envelope{poll: &msg}); err != nil {
		return &model.ProtocolError{Op: "send poll", TaskID: msg.Target, Err: err}
	}
	return nil
}

func (c *MailboxChannel) Await(ctx context.Context, from model.TaskID) (model.ReplyMessage, error) {
	env, err := c.mailbox.receive(ctx, CoordinatorAddr)
	if err != nil {
		return model.ReplyMessage{}, err
	}
	if env.reply == nil {
		return model.ReplyMessage{}, &model.ProtocolError{Op: "await reply", TaskID: from, Err: errors.New("message is not a reply")}
	}
	if env.reply.From != from {
		return model.ReplyMessage{}, &model.ProtocolError{
			Op:     "await reply",
			TaskID: from,
			Err:    fmt.Errorf("reply from unexpected task %d", env.reply.From),
		}
	}
	return *env.reply, nil
}

func (c *MailboxChannel) Close() error {
	return c.mailbox.Close()
}

// MailboxEndpoint is a task's Endpoint over a Mailbox.
type MailboxEndpoint struct {
	mailbox *Mailbox
	id      model.TaskID
}

func (e *MailboxEndpoint) Receive(ctx context.Context) (model.PollMessage, error) {
	env, err := e.mailbox.receive(ctx, e.id)
	if err != nil {
		return model.PollMessage{}, err
	}
	if env.poll == nil {
		return model.PollMessage{}, &model.ProtocolError{Op: "receive poll", TaskID: e.id, Err: errors.New("message is not a poll")}
	}
	return *env.poll, nil
}

func (e *MailboxEndpoint) Reply(ctx context.Context, msg model.ReplyMessage) error {
	return e.mailbox.deliver(ctx, CoordinatorAddr, envelope{reply: &msg})
}
