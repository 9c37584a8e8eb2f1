package blockstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	ErrNotInPool      = errors.New("buffer not in pool")
	ErrBufferTooLarge = errors.New("buffer larger than pool limit")
)

// Holds one block while its hash is checked. Close gives it back to the pool it came from, and
// is safe to call more than once.
type PooledBuffer interface {
	io.ReadWriteCloser
	Len() int
	Bytes() []byte
	Reset()
}

type BufferPool interface {
	// Returns an empty buffer that can hold size bytes without growing.
	Get(ctx context.Context, size int64) (PooledBuffer, error)
}

// Buffers are grouped by capacity rounded up to bytes.MinRead, so io.Copy into a full-sized
// buffer never grows it.
func sizeClass(size int64) int64 {
	return (size/bytes.MinRead + 1) * bytes.MinRead
}

type classPool struct {
	classes sync.Map // int64 -> *sync.Pool
}

func (p *classPool) class(c int64) *sync.Pool {
	if sp, ok := p.classes.Load(c); ok {
		return sp.(*sync.Pool)
	}
	sp, _ := p.classes.LoadOrStore(c, &sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, c))
		},
	})
	return sp.(*sync.Pool)
}

func (p *classPool) Get(_ context.Context, size int64) (PooledBuffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %v", size)
	}
	c := sizeClass(size)
	pooledBufferBytes.Add(c)
	return &classBuffer{
		Buffer: p.class(c).Get().(*bytes.Buffer),
		class:  c,
		pool:   p,
	}, nil
}

type classBuffer struct {
	*bytes.Buffer
	class int64
	pool  *classPool
}

func (b *classBuffer) Close() error {
	if b.Buffer == nil {
		return nil
	}
	sp, ok := b.pool.classes.Load(b.class)
	if !ok {
		return ErrNotInPool
	}
	pooledBufferBytes.Add(-b.class)
	b.Buffer.Reset()
	sp.(*sync.Pool).Put(b.Buffer)
	b.Buffer = nil
	return nil
}

// An unbounded pool.
func NewBufferPool() BufferPool {
	return &classPool{}
}

type limitedPool struct {
	buffers BufferPool
	limit   int64
	sem     *semaphore.Weighted
}

// Caps the total size of buffers lent out. Get blocks until enough is returned or the context is
// done. A request larger than the whole limit can never succeed, so it fails immediately.
func NewLimitedBufferPool(pool BufferPool, limit int64) BufferPool {
	return &limitedPool{
		buffers: pool,
		limit:   limit,
		sem:     semaphore.NewWeighted(limit),
	}
}

func (p *limitedPool) Get(ctx context.Context, size int64) (PooledBuffer, error) {
	if size > p.limit {
		return nil, fmt.Errorf("%w: %v > %v", ErrBufferTooLarge, size, p.limit)
	}
	err := p.sem.Acquire(ctx, size)
	if err != nil {
		return nil, err
	}
	b, err := p.buffers.Get(ctx, size)
	if err != nil {
		p.sem.Release(size)
		return nil, err
	}
	return &limitedBuffer{PooledBuffer: b, release: func() { p.sem.Release(size) }}, nil
}

type limitedBuffer struct {
	PooledBuffer
	once    sync.Once
	release func()
}

func (b *limitedBuffer) Close() (err error) {
	b.once.Do(func() {
		err = b.PooledBuffer.Close()
		b.release()
	})
	return
}

// Used by pipelines that aren't given a pool.
var DefaultBufferPool = NewLimitedBufferPool(NewBufferPool(), 256<<20)
