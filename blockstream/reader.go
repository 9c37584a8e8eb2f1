package blockstream

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/anacrolix/log"
)

// Reads a stream from its parts, hashing each block on the way. With buffering, a block is only
// returned once its hash is accepted. Must be closed.
type Reader struct {
	stream
	partReader io.ReadCloser
	// Set when the parts ran out or a part ended early.
	partsDone bool
}

var _ io.ReadCloser = (*Reader)(nil)

// The context bounds waiting for a block buffer.
func NewReader(ctx context.Context, parts iter.Seq[Part], behavior Behavior, opts Opts) (*Reader, error) {
	r := &Reader{}
	err := r.init(ctx, parts, behavior, opts, "reader")
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.buf != nil {
		n, err = r.readBuffered(p)
	} else {
		n, err = r.readDirect(p)
	}
	if err != nil {
		r.err = err
	}
	return
}

func (r *Reader) readBuffered(p []byte) (int, error) {
	if r.buf.Len() == 0 {
		err := r.fillBlock()
		if err != nil {
			return 0, err
		}
	}
	return r.buf.Read(p)
}

// Reads, hashes and verifies a whole block into the buffer.
func (r *Reader) fillBlock() error {
	ok, err := r.startBlock()
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	r.buf.Reset()
	n, err := io.CopyN(r.buf, partsReader{r}, r.blockMax)
	r.blockLen = n
	if err != nil && err != io.EOF {
		return err
	}
	if n == 0 && r.partsDone {
		return io.ErrUnexpectedEOF
	}
	r.hash.Write(r.buf.Bytes())
	err = r.finishBlock()
	if err != nil {
		r.buf.Reset()
		return err
	}
	r.blockCommitted()
	return nil
}

func (r *Reader) readDirect(p []byte) (n int, err error) {
	ok, err := r.startBlock()
	if err != nil {
		return
	}
	if !ok {
		return 0, io.EOF
	}
	n, err = r.readParts(p[:min(int64(len(p)), r.blockMax-r.blockLen)])
	r.hash.Write(p[:n])
	r.blockLen += int64(n)
	if err == io.EOF {
		if r.blockLen == 0 {
			return n, io.ErrUnexpectedEOF
		}
		// The block is short. Let the behaviour judge it.
		err = nil
	} else if err != nil {
		return
	}
	if r.blockLen == r.blockMax || r.partsDone {
		err = r.finishBlock()
		if err != nil {
			return
		}
		r.blockCommitted()
	}
	return
}

type partsReader struct {
	r *Reader
}

func (me partsReader) Read(b []byte) (int, error) {
	return me.r.readParts(b)
}

// Returns io.EOF once the parts are exhausted, or the current part ends before its declared
// length.
func (r *Reader) readParts(b []byte) (int, error) {
	if r.partsDone {
		return 0, io.EOF
	}
	if r.partRemaining == 0 {
		err := r.closePart()
		if err != nil {
			return 0, err
		}
		ok, err := r.advancePart()
		if err != nil {
			return 0, err
		}
		if !ok {
			r.partsDone = true
			return 0, io.EOF
		}
		r.partReader, err = r.part.OpenReader()
		if err != nil {
			return 0, fmt.Errorf("opening part reader: %w", err)
		}
	}
	n, err := r.partReader.Read(b[:min(int64(len(b)), r.partRemaining)])
	r.partRemaining -= int64(n)
	if err == io.EOF {
		if r.partRemaining != 0 {
			r.logger.Levelf(log.Debug, "part ended %v bytes early", r.partRemaining)
			r.partsDone = true
		}
		if n != 0 || !r.partsDone {
			err = nil
		}
	}
	return n, err
}

func (r *Reader) closePart() error {
	if r.partReader == nil {
		return nil
	}
	err := r.partReader.Close()
	r.partReader = nil
	return err
}

// Closing before the stream's known length is logged and reported by Short. Errors already
// returned by Read are not repeated.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.release()
	if r.err == io.EOF {
		r.err = nil
	}
	var unread int64
	if r.buf != nil {
		unread = int64(r.buf.Len())
	}
	r.checkShort("read", unread)
	return r.closePart()
}
