package mqtt

import log "github.com/sirupsen/logrus"

// DefaultBufferSize is how many outbound messages are held while offline.
const DefaultBufferSize = 100

// pendingMsg is an outbound message held until the broker is reachable again.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue keeps the newest messages in a fixed-size ring, oldest first on drain.
// Callers must hold the client mutex.
type offlineQueue struct {
	slots   []pendingMsg
	next    int // slot the next push writes to
	size    int
	dropped int // messages overwritten since the last drain
}

func newOfflineQueue(capacity int) *offlineQueue {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &offlineQueue{slots: make([]pendingMsg, capacity)}
}

func (q *offlineQueue) push(msg pendingMsg) {
	capacity := len(q.slots)
	if q.size == capacity {
		if q.dropped == 0 {
			log.WithField("capacity", capacity).Warn("mqtt: offline queue full, dropping oldest")
		}
		q.dropped++
	} else {
		q.size++
	}
	q.slots[q.next] = msg
	q.next = (q.next + 1) % capacity
}

// drain returns queued messages oldest first and empties the queue.
func (q *offlineQueue) drain() []pendingMsg {
	if q.size == 0 {
		return nil
	}
	capacity := len(q.slots)
	out := make([]pendingMsg, 0, q.size)
	first := (q.next - q.size + capacity) % capacity
	for i := 0; i < q.size; i++ {
		out = append(out, q.slots[(first+i)%capacity])
	}
	if q.dropped > 0 {
		log.WithField("dropped", q.dropped).Warn("mqtt: offline queue overflowed while disconnected")
	}
	q.next, q.size, q.dropped = 0, 0, 0
	return out
}

func (q *offlineQueue) len() int {
	return q.size
}
