package mqtt

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrNotConnected is returned for messages that are dropped, not buffered,
// while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// outbox sends messages while connected and buffers the ones worth keeping
// while not. Readings are not worth keeping: a fresh one follows every second.
type outbox struct {
	mu        sync.Mutex
	buf       *ringBuffer
	connected func() bool
	send      func(bufferedMsg) error
	log       *zap.Logger

	dropped int
}

func newOutbox(capacity int, connected func() bool, send func(bufferedMsg) error, log *zap.Logger) *outbox {
	return &outbox{
		buf:       newRingBuffer(capacity),
		connected: connected,
		send:      send,
		log:       log,
	}
}

// publish sends msg or, if keep is true, buffers it for the next flush.
func (o *outbox) publish(msg bufferedMsg, keep bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected() {
		if !keep {
			o.dropped++
			return ErrNotConnected
		}
		o.push(msg)
		return nil
	}

	if err := o.send(msg); err != nil {
		if keep {
			o.push(msg)
		}
		return err
	}
	return nil
}

func (o *outbox) push(msg bufferedMsg) {
	if o.buf.push(msg) {
		o.log.Warn("mqtt buffer full, dropping oldest", zap.Int("capacity", o.buf.capacity))
	}
}

// flush replays buffered messages in order. Messages that fail to send are
// kept for the next flush.
func (o *outbox) flush() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := o.buf.drainAll()
	for i, msg := range msgs {
		if err := o.send(msg); err != nil {
			for _, rest := range msgs[i:] {
				o.buf.push(rest)
			}
			return i, err
		}
	}
	return len(msgs), nil
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}
