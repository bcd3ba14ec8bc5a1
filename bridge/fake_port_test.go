package bridge

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

var (
	errFakePortClosed = errors.New("fake port closed")
	errFakeWrite      = errors.New("fake write failure")
)

// fakePort is an in-memory SerialPort honouring the read timeout contract of go.bug.st/serial.
type fakePort struct {
	mu          sync.Mutex
	readTimeout time.Duration
	pending     []byte
	readErrs    []error
	writeErrs   int
	panicOnRead bool
	writes      [][]byte

	incoming  chan []byte
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

var _ SerialPort = (*fakePort)(nil)

func newFakePort() *fakePort {
	return &fakePort{
		readTimeout: 20 * time.Millisecond,
		incoming:    make(chan []byte, 1024),
		written:     make(chan []byte, 1024),
		closed:      make(chan struct{}),
	}
}

// Feed queues device output.
func (p *fakePort) Feed(data string) {
	p.incoming <- []byte(data)
}

func (p *fakePort) failReads(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErrs = append(p.readErrs, errs...)
}

func (p *fakePort) failWrites(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErrs = n
}

func (p *fakePort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)

	return out
}

func (p *fakePort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.panicOnRead {
		p.mu.Unlock()
		panic("fake port read panic")
	}
	if len(p.readErrs) > 0 {
		err := p.readErrs[0]
		p.readErrs = p.readErrs[1:]
		p.mu.Unlock()
		return 0, err
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-p.incoming:
		n := copy(b, data)
		if n < len(data) {
			p.mu.Lock()
			p.pending = append(p.pending, data[n:]...)
			p.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-p.closed:
		return 0, errFakePortClosed
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.IsClosed() {
		return 0, errFakePortClosed
	}

	p.mu.Lock()
	if p.writeErrs > 0 {
		p.writeErrs--
		p.mu.Unlock()
		return 0, errFakeWrite
	}
	line := bytes.Clone(b)
	p.writes = append(p.writes, line)
	p.mu.Unlock()

	select {
	case p.written <- line:
	default:
	}

	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t

	return nil
}
