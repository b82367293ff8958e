package offload

import "sync"

// mailbox is a thread-safe unbounded FIFO of messages.
//
// Posting never blocks so the writer is never stalled by the worker. The
// signal channel (buffered, size 1) coalesces wakeups so the worker can
// wait on it alongside ctx.Done().
type mailbox struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	signal   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		messages: make([]Message, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// post appends m. Returns false once the mailbox is closed.
func (b *mailbox) post(m Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.messages = append(b.messages, m)
	b.notify()
	return true
}

func (b *mailbox) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// take removes every queued message. done is true when the mailbox is
// closed and nothing is left to deliver.
func (b *mailbox) take() (msgs []Message, done bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs = b.messages
	b.messages = nil
	return msgs, b.closed && len(msgs) == 0
}

// close stops accepting messages. Already queued messages are still
// delivered.
func (b *mailbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.notify()
}

// len returns the number of undelivered messages.
func (b *mailbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
