package pkgdist

import (
	"runtime"

	"github.com/anacrolix/log"
	"golang.org/x/time/rate"

	"github.com/anacrolix/pkgdist/blockstream"
)

// Probably not safe to modify this after it's given to a Package.
type Config struct {
	Logger log.Logger
	// Holds received and served segments until they're verified.
	BufferPool blockstream.BufferPool
	// Limits bytes served to peers. Burst caps the size of each write.
	UploadRateLimiter *rate.Limiter
	// Data files hashed at once by Recheck.
	RecheckConcurrency int
}

func NewDefaultConfig() *Config {
	return &Config{
		Logger:             log.Default.WithNames("pkgdist"),
		BufferPool:         blockstream.DefaultBufferPool,
		UploadRateLimiter:  rate.NewLimiter(rate.Inf, 0),
		RecheckConcurrency: runtime.GOMAXPROCS(0),
	}
}
