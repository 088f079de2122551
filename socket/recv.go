// File: socket/recv.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"github.com/eapache/queue"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/internal/transport"
)

// receive is the per-connection loop. Each read is queued and handed to
// DATA in order. Chunks wait while no DATA handler is registered; once
// maxPending are waiting the loop stops reading, so the kernel buffers and
// then the peer's sends absorb the back-pressure.
func (s *Socket) receive() {
	buf := s.opts.pool.GetBuffer()
	defer s.opts.pool.PutBuffer(buf)

	pending := queue.New()
	var readErr error
	for {
		if pending.Length() >= s.opts.maxPending && !s.awaitDataHandler(pending) {
			break
		}
		n, err := transport.Recv(s.fd, buf)
		if err != nil {
			if transport.IsWouldBlock(err) {
				continue
			}
			readErr = err
			break
		}
		if n == 0 {
			break
		}
		s.opts.metrics.BytesReceived(n)
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		pending.Add(chunk)
		s.drain(pending)
	}

	s.drain(pending)
	if left := pending.Length(); left > 0 {
		s.opts.logger.Debug("dropping undelivered data", "chunks", left, "remote", s.RemoteAddr())
	}
	if readErr != nil {
		s.opts.logger.Debug("receive failed", "err", readErr, "remote", s.RemoteAddr())
		s.fireError(api.ErrBrokenPipe.Error())
	}
	s.fireEnd()
	s.release()
}

// drain delivers queued chunks until the queue is empty or DATA has no handler.
func (s *Socket) drain(pending *queue.Queue) {
	for pending.Length() > 0 {
		if !s.fireData(pending.Peek().([]byte)) {
			return
		}
		pending.Remove()
	}
}

// awaitDataHandler blocks while the pending queue is full, retrying delivery
// on every registration change. It reports false when Close interrupts.
func (s *Socket) awaitDataHandler(pending *queue.Queue) bool {
	for {
		s.drain(pending)
		if pending.Length() < s.opts.maxPending {
			return true
		}
		select {
		case <-s.reg.changed:
		case <-s.closing:
			return false
		}
	}
}
