// Package ipc carries poll and reply messages between the coordinator and its
// tasks. Delivery is addressed: a task only observes polls addressed to it and
// the coordinator only observes replies addressed to itself.
package ipc

import (
	"context"
	"errors"

	"github.com/me/ossim/pkg/model"
)

// CoordinatorAddr is the mailbox address replies are sent to.
const CoordinatorAddr model.TaskID = -1

var (
	ErrClosed        = errors.New("ipc: channel closed")
	ErrUndeliverable = errors.New("ipc: no mailbox for address")
)

// Channel is the coordinator's end of the message channel.
type Channel interface {
	// Send delivers a poll to msg.Target.
	Send(ctx context.Context, msg model.PollMessage) error

	// Await blocks until the reply from the given task arrives.
	Await(ctx context.Context, from model.TaskID) (model.ReplyMessage, error)

	// Close releases the channel. Blocked callers return ErrClosed.
	Close() error
}

// Endpoint is a task's end of the message channel.
type Endpoint interface {
	// Receive blocks until a poll addressed to this task arrives.
	Receive(ctx context.Context) (model.PollMessage, error)

	// Reply sends the task's answer to the coordinator.
	Reply(ctx context.Context, msg model.ReplyMessage) error
}
