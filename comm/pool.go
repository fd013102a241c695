package comm

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Get after Close has been called
var ErrPoolClosed = errors.New("connection pool is closed")

// Pool lends out up to maxSize connections to one remote.  Idle connections
// are closed after the timeout and dialed again on the next Get.  Safe for
// concurrent use; create with NewPool.
type Pool struct {
	maxSize int                     // cap(conns)
	onLease int                     // lent out, never above maxSize
	timeout time.Duration           // idle time after which pooled connections are freed
	conns   chan io.ReadWriteCloser // idle connections
	timer   *time.Timer             // fires reclaim once the pool has sat idle for timeout
	maker   CreationFunc
	closed  bool

	mu   sync.Mutex
	free *sync.Cond // signalled when a lease ends or the pool closes
}

// NewPool creates a pool of at most maxSize connections produced by maker
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		maker:   maker,
	}
	p.free = sync.NewCond(&p.mu)
	p.timer = time.AfterFunc(timeout, p.reclaim)
	p.timer.Stop() // nothing to reclaim initially
	return p
}

// Get retrieves a connection from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contention
// for the ReadWriter.
//
// Hand the connection back with Put, or with Destroy once it is broken.
// ReturnWithError picks between the two.
//
// If the error from Get is not nil, you must not return it to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		p.timer.Stop()
		select {
		case c := <-p.conns:
			p.onLease++
			p.mu.Unlock()
			return c, nil
		default:
		}
		if p.onLease < p.maxSize {
			p.onLease++
			p.mu.Unlock()
			c, err := p.maker()
			if err != nil {
				p.mu.Lock()
				p.onLease--
				p.free.Signal()
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		// all leased, wait for a Put, Destroy or Close
		p.free.Wait()
	}
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLease--
	if p.closed {
		rwc.Close()
		return
	}
	p.conns <- rwc
	p.free.Signal()
	if p.onLease == 0 {
		p.timer.Reset(p.timeout)
	}
}

// Destroy immediately frees a connection from the pool.  This should be used
// instead of Put if the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.free.Signal()
	p.mu.Unlock()
}

// ReturnWithError returns the connection with Put if err is nil,
// else frees it with Destroy.  It is meant to be deferred.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// Close frees every idle connection.  Connections on lease are closed when
// they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.timer.Stop()
	p.free.Broadcast()
	var first error
	for {
		select {
		case c := <-p.conns:
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		default:
			return first
		}
	}
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onLease != 0 {
		return
	}
	for {
		select {
		case c := <-p.conns:
			c.Close()
		default:
			return
		}
	}
}
