package blockstream

import (
	"context"
	"fmt"
	"hash"
	"iter"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"

	"github.com/anacrolix/pkgdist/types/pkghash"
)

type Opts struct {
	Logger g.Option[log.Logger]
	// Where buffered blocks are held. Defaults to DefaultBufferPool.
	Pool BufferPool
	// Called with each block index once the behaviour accepts it. For writers the block has also
	// reached the parts.
	OnCommit func(block int)
}

// State shared by readers and writers: the current part, the current block and its running hash.
type stream struct {
	behavior Behavior
	logger   log.Logger
	onCommit func(block int)

	nextPart  func() (Part, bool)
	stopParts func()
	part      Part
	// Bytes left in the current part.
	partRemaining int64

	block     int
	blockOpen bool
	blockMax  int64
	blockLen  int64
	hash      hash.Hash
	// Non-nil when buffering.
	buf PooledBuffer

	// Bytes committed in total.
	committed int64
	err       error
	closed    bool
	short     bool
}

func (s *stream) init(ctx context.Context, parts iter.Seq[Part], behavior Behavior, opts Opts, name string) error {
	s.behavior = behavior
	s.logger = opts.Logger.UnwrapOr(log.Default.WithNames("blockstream", name))
	s.onCommit = opts.OnCommit
	s.hash = pkghash.New()
	if capacity, ok := behavior.Buffering().AsTuple(); ok {
		pool := opts.Pool
		if pool == nil {
			pool = DefaultBufferPool
		}
		buf, err := pool.Get(ctx, capacity)
		if err != nil {
			return fmt.Errorf("getting block buffer: %w", err)
		}
		s.buf = buf
	}
	s.nextPart, s.stopParts = iter.Pull(parts)
	return nil
}

// Opens the next block if there isn't one. Returns false if the behaviour has ended the stream.
func (s *stream) startBlock() (bool, error) {
	if s.blockOpen {
		return true, nil
	}
	size, ok := s.behavior.NextBlockMaxSize(s.block).AsTuple()
	if !ok {
		return false, nil
	}
	if size <= 0 {
		return false, fmt.Errorf("%w: block %v has length %v", ErrInvalidStream, s.block, size)
	}
	if capacity, ok := s.behavior.Buffering().AsTuple(); ok && size > capacity {
		return false, fmt.Errorf(
			"%w: block %v length %v exceeds buffer capacity %v",
			ErrInvalidStream, s.block, size, capacity)
	}
	s.blockOpen = true
	s.blockMax = size
	s.blockLen = 0
	s.hash.Reset()
	return true, nil
}

// Hands the block hash to the behaviour. The caller commits the block bytes if this succeeds.
func (s *stream) finishBlock() error {
	blocksHashed.Add(1)
	return s.behavior.OnBlockHashComputed(pkghash.FromHash(s.hash), s.block, s.blockLen)
}

func (s *stream) blockCommitted() {
	bytesCommitted.Add(s.blockLen)
	s.committed += s.blockLen
	if s.onCommit != nil {
		s.onCommit(s.block)
	}
	s.block++
	s.blockOpen = false
}

// Pulls the next part. Returns false when there are no more parts.
func (s *stream) advancePart() (bool, error) {
	part, ok := s.nextPart()
	if !ok {
		return false, nil
	}
	if part.Length() <= 0 {
		return false, fmt.Errorf("%w: part has length %v", ErrInvalidStream, part.Length())
	}
	s.part = part
	s.partRemaining = part.Length()
	return true, nil
}

// Unconsumed is committed bytes the caller never saw.
func (s *stream) checkShort(verb string, unconsumed int64) {
	total, ok := s.behavior.TotalLength().AsTuple()
	done := s.committed - unconsumed
	if !ok || done >= total || s.err != nil {
		return
	}
	s.short = true
	shortStreams.Add(1)
	s.logger.Levelf(log.Warning, "short %s: closed after %v of %v bytes", verb, done, total)
}

func (s *stream) release() {
	s.stopParts()
	if s.buf != nil {
		s.buf.Close()
		s.buf = nil
	}
}

// Number of blocks that made it through.
func (s *stream) Blocks() int {
	return s.block
}

// Bytes committed so far.
func (s *stream) Committed() int64 {
	return s.committed
}

// Whether the stream was closed before its declared length.
func (s *stream) Short() bool {
	return s.short
}

// The sticky error, if any.
func (s *stream) Err() error {
	return s.err
}
