package pkgdist

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type rateLimitedWriter struct {
	ctx context.Context
	l   *rate.Limiter
	w   io.Writer
}

func (me rateLimitedWriter) Write(b []byte) (n int, err error) {
	for len(b) != 0 {
		chunk := b
		if burst := me.l.Burst(); burst != 0 && me.l.Limit() != rate.Inf {
			chunk = chunk[:min(len(chunk), burst)]
		}
		err = me.l.WaitN(me.ctx, len(chunk))
		if err != nil {
			return
		}
		var n1 int
		n1, err = me.w.Write(chunk)
		n += n1
		b = b[n1:]
		if err != nil {
			return
		}
	}
	return
}
