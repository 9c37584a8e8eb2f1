package blockstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Writes a stream through its parts, hashing each block on the way. Must be closed.
type Writer struct {
	stream
	partWriter io.WriteCloser
}

var _ io.WriteCloser = (*Writer)(nil)

// The context bounds waiting for a block buffer.
func NewWriter(ctx context.Context, parts iter.Seq[Part], behavior Behavior, opts Opts) (*Writer, error) {
	w := &Writer{}
	err := w.init(ctx, parts, behavior, opts, "writer")
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	for len(p) > 0 {
		var ok bool
		ok, err = w.startBlock()
		if err != nil {
			break
		}
		if !ok {
			err = fmt.Errorf("%w: write past last block", ErrInvalidStream)
			break
		}
		chunk := p[:min(int64(len(p)), w.blockMax-w.blockLen)]
		w.hash.Write(chunk)
		if w.buf != nil {
			w.buf.Write(chunk)
		} else {
			err = w.writeParts(chunk)
			if err != nil {
				break
			}
		}
		w.blockLen += int64(len(chunk))
		n += len(chunk)
		p = p[len(chunk):]
		if w.blockLen == w.blockMax {
			err = w.endBlock()
			if err != nil {
				break
			}
		}
	}
	w.err = err
	return
}

func (w *Writer) endBlock() error {
	err := w.finishBlock()
	if err != nil {
		return err
	}
	if w.buf != nil {
		err = w.writeParts(w.buf.Bytes())
		w.buf.Reset()
		if err != nil {
			return err
		}
	}
	w.blockCommitted()
	return nil
}

func (w *Writer) writeParts(b []byte) error {
	for len(b) > 0 {
		if w.partRemaining == 0 {
			err := w.closePart()
			if err != nil {
				return err
			}
			ok, err := w.advancePart()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: write past last part", ErrInvalidStream)
			}
			w.partWriter, err = w.part.OpenWriter()
			if err != nil {
				return fmt.Errorf("opening part writer: %w", err)
			}
		}
		chunk := b[:min(int64(len(b)), w.partRemaining)]
		n, err := w.partWriter.Write(chunk)
		w.partRemaining -= int64(n)
		b = b[n:]
		if err != nil {
			return err
		}
		if n < len(chunk) {
			return io.ErrShortWrite
		}
	}
	return nil
}

func (w *Writer) closePart() error {
	if w.partWriter == nil {
		return nil
	}
	err := w.partWriter.Close()
	w.partWriter = nil
	return err
}

// Flushes a trailing partial block if the stream length isn't known. Closing before a known
// length is reached is logged and reported by Short, but is not an error. Returns the sticky error
// if there is one.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.release()
	err := w.err
	if err == nil && w.blockOpen && w.blockLen > 0 && !w.behavior.TotalLength().Ok {
		err = w.endBlock()
		w.err = err
	}
	w.checkShort("write", 0)
	return errors.Join(err, w.closePart())
}
