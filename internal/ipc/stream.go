package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/me/ossim/pkg/model"
)

// The stream codec carries one JSON document per line. Process workers read
// polls from stdin and write replies to stdout.

type pollResult struct {
	msg model.PollMessage
	err error
}

// StreamEndpoint is a task Endpoint over a pair of byte streams.
type StreamEndpoint struct {
	mu    sync.Mutex
	enc   *json.Encoder
	polls chan pollResult
}

// NewStreamEndpoint starts decoding polls from r; replies are written to w.
func NewStreamEndpoint(r io.Reader, w io.Writer) *StreamEndpoint {
	e := &StreamEndpoint{
		enc:   json.NewEncoder(w),
		polls: make(chan pollResult),
	}
	go e.pump(json.NewDecoder(r))
	return e
}

func (e *StreamEndpoint) pump(dec *json.Decoder) {
	defer close(e.polls)
	for {
		var msg model.PollMessage
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				e.polls <- pollResult{err: &model.ProtocolError{Op: "decode poll", Err: err}}
			}
			return
		}
		e.polls <- pollResult{msg: msg}
	}
}

func (e *StreamEndpoint) Receive(ctx context.Context) (model.PollMessage, error) {
	select {
	case r, ok := <-e.polls:
		if !ok {
			return model.PollMessage{}, ErrClosed
		}
		return r.msg, r.err
	case <-ctx.Done():
		return model.PollMessage{}, ctx.Err()
	}
}

func (e *StreamEndpoint) Reply(_ context.Context, msg model.ReplyMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return nil
}

type replyResult struct {
	msg model.ReplyMessage
	err error
}

// StreamConn is the coordinator's connection to one process worker.
type StreamConn struct {
	id      model.TaskID
	mu      sync.Mutex
	enc     *json.Encoder
	replies chan replyResult
	done    chan struct{}
	once    sync.Once
}

// NewStreamConn creates a connection that writes polls for task id to w.
// Replies are fed in by Pump.
func NewStreamConn(id model.TaskID, w io.Writer) *StreamConn {
	return &StreamConn{
		id:      id,
		enc:     json.NewEncoder(w),
		replies: make(chan replyResult, 1),
		done:    make(chan struct{}),
	}
}

// Pump decodes replies from r until it is exhausted or the conn is closed.
// It blocks and is meant to run on the goroutine supervising the worker.
func (c *StreamConn) Pump(r io.Reader) {
	defer close(c.replies)
	dec := json.NewDecoder(r)
	for {
		var res replyResult
		if err := dec.Decode(&res.msg); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			res.err = &model.ProtocolError{Op: "decode reply", TaskID: c.id, Err: err}
		}
		select {
		case c.replies <- res:
		case <-c.done:
			return
		}
		if res.err != nil {
			return
		}
	}
}

// Send writes one poll to the worker.
func (c *StreamConn) Send(msg model.PollMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode poll: %w", err)
	}
	return nil
}

// Await blocks for the worker's next reply.
func (c *StreamConn) Await(ctx context.Context) (model.ReplyMessage, error) {
	select {
	case r, ok := <-c.replies:
		if !ok {
			return model.ReplyMessage{}, &model.ProtocolError{Op: "await reply", TaskID: c.id, Err: io.ErrUnexpectedEOF}
		}
		if r.err != nil {
			return model.ReplyMessage{}, r.err
		}
		if r.msg.From != c.id {
			return model.ReplyMessage{}, &model.ProtocolError{
				Op:     "await reply",
				TaskID: c.id,
				Err:    fmt.Errorf("reply from unexpected task %d", r.msg.From),
			}
		}
		return r.msg, nil
	case <-ctx.Done():
		return model.ReplyMessage{}, ctx.Err()
	case <-c.done:
		return model.ReplyMessage{}, ErrClosed
	}
}

// Close stops Pump from delivering further replies.
func (c *StreamConn) Close() {
	c.once.Do(func() { close(c.done) })
}
