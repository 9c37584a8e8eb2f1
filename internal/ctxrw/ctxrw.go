package ctxrw

import (
	"context"
	"io"
)

type contextedReader struct {
	ctx context.Context
	r   io.Reader
}

func (me contextedReader) Read(p []byte) (n int, err error) {
	err = context.Cause(me.ctx)
	if err != nil {
		return
	}
	return me.r.Read(p)
}

type contextedWriter struct {
	ctx context.Context
	w   io.Writer
}

func (me contextedWriter) Write(p []byte) (n int, err error) {
	err = context.Cause(me.ctx)
	if err != nil {
		return
	}
	return me.w.Write(p)
}

// Fails reads once the context is done. A read already blocked is not interrupted.
func WrapReader(ctx context.Context, r io.Reader) io.Reader {
	return contextedReader{ctx: ctx, r: r}
}

// Fails writes once the context is done. A write already blocked is not interrupted.
func WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	return contextedWriter{ctx: ctx, w: w}
}
