package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	sendBufferSize = 32
)

// clientWriter serializes all outbound writes for one connection through a
// single goroutine. It implements registry.Sink; the per-writer FIFO is what
// keeps the subscribed ack ahead of any event delivered afterwards.
type clientWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		clock:  clock,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			cw.drain()
			return
		}
	}
}

// drain flushes whatever is already buffered so frames enqueued right before
// shutdown (error replies, the final ack) still reach the client.
func (cw *clientWriter) drain() {
	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Enqueue hands a payload to the write pump without blocking. Returns false
// when the buffer is full or the writer already stopped.
func (cw *clientWriter) Enqueue(payload []byte) bool {
	select {
	case <-cw.done:
		return false
	default:
	}
	select {
	case cw.sendCh <- payload:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() { close(cw.done) })
	cw.wg.Wait()
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = cw.conn.Close()
}
