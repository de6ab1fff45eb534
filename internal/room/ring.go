package room

import "github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"

// ring is a fixed-size buffer of the most recent room events, kept for
// reconnect replay. Not safe for concurrent use; the owning room's lock
// guards it.
type ring struct {
	buf   []models.Event
	next  int // write position
	count int
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{buf: make([]models.Event, size)}
}

func (r *ring) append(evt models.Event) {
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// oldest returns the lowest buffered sequence number. Zero when empty.
func (r *ring) oldest() uint64 {
	if r.count == 0 {
		return 0
	}
	idx := (r.next - r.count + len(r.buf)) % len(r.buf)
	return r.buf[idx].Seq
}

// since returns buffered events with Seq > lastSeq in sequence order.
// ok is false when the gap exceeds the buffer, meaning events between
// lastSeq and the oldest buffered entry are gone and the client must
// perform a full resync.
func (r *ring) since(lastSeq uint64) (events []models.Event, ok bool) {
	if r.count == 0 {
		return nil, true
	}
	if oldest := r.oldest(); oldest > lastSeq+1 {
		return nil, false
	}

	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		evt := r.buf[(start+i)%len(r.buf)]
		if evt.Seq > lastSeq {
			events = append(events, evt)
		}
	}
	return events, true
}
