package burnin

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// filler produces the chunks the generator hands to the writer.
// *garbage.Stream is the only one outside tests.
type filler interface {
	Fill(buf []byte) (int, error)
}

// chunkQueue is the bounded hand-off between the generator and the writer.
// Buffers move generator -> ch -> writer -> free -> generator and are only
// ever held by one side.
type chunkQueue struct {
	ch   chan []byte
	free chan []byte
	size int

	// err is why the generator stopped. It is set before ch is closed.
	err error

	peak      atomic.Int64
	allocated atomic.Int64
}

func newChunkQueue(depth, size int) *chunkQueue {
	return &chunkQueue{
		ch:   make(chan []byte, depth),
		free: make(chan []byte, depth+2),
		size: size,
	}
}

func (q *chunkQueue) get() []byte {
	select {
	case buf := <-q.free:
		return buf
	default:
		q.allocated.Add(1)
		return make([]byte, q.size)
	}
}

func (q *chunkQueue) recycle(buf []byte) {
	select {
	case q.free <- buf:
	default:
	}
}

// put enqueues buf, blocking while the queue is full. It returns false once
// done is closed, which means the writer has gone away.
func (q *chunkQueue) put(buf []byte, done <-chan struct{}, log *logrus.Entry) bool {
	select {
	case <-done:
		return false
	default:
	}
	select {
	case q.ch <- buf:
	default:
		log.Debug("Byte generator pipeline stalled; blocking")
		select {
		case q.ch <- buf:
		case <-done:
			return false
		}
	}
	q.notePeak(int64(len(q.ch)))
	return true
}

func (q *chunkQueue) notePeak(n int64) {
	for {
		cur := q.peak.Load()
		if n <= cur || q.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}

// generate fills chunks from src until the writer signals done or src
// fails. Either way q.err says why once ch is closed.
func (q *chunkQueue) generate(src filler, done <-chan struct{}, log *logrus.Entry) {
	defer close(q.ch)
	for {
		buf := q.get()
		n, err := src.Fill(buf)
		if err == nil && n < len(buf) {
			err = fmt.Errorf("short fill: %d of %d bytes", n, len(buf))
		}
		if err != nil {
			log.WithError(err).Warn("Could not fill buffer with random-ish bytes")
			q.err = err
			return
		}
		if !q.put(buf, done, log) {
			q.err = errGeneratorStopped
			return
		}
	}
}
