package storage

import (
	"log/slog"
)

// A bolt store in dir, or an in-memory one if that can't be opened.
func NewStateStoreForDir(dir string, logger *slog.Logger) StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	ss, err := NewBoltStateStore(dir)
	if err != nil {
		logger.Warn("couldn't open download state store, state won't persist", "dir", dir, "err", err)
		return NewMapStateStore()
	}
	return ss
}
