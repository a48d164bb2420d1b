// Package blobstore keeps finished recordings addressable by object URL
// until they are revoked, and writes them out through sinks.
package blobstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const urlPrefix = "blob:recapcannon/"

// ErrRevoked is returned when resolving an unknown or revoked URL
var ErrRevoked = errors.New("object url revoked")

// Blob is an immutable in-memory recording
type Blob struct {
	URL      string
	MimeType string
	Data     []byte
	Created  time.Time
}

// Size returns the blob length in bytes
func (b *Blob) Size() int64 { return int64(len(b.Data)) }

// Store maps object URLs to blobs. Every URL must eventually be revoked;
// Close revokes whatever is left.
type Store struct {
	mu     sync.Mutex
	blobs  map[string]*Blob
	logger zerolog.Logger
}

// NewStore creates an empty store
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		blobs:  make(map[string]*Blob),
		logger: logger.With().Str("component", "blobstore").Logger(),
	}
}

// Create registers data and returns its object URL
func (s *Store) Create(data []byte, mimeType string) *Blob {
	b := &Blob{
		URL:      urlPrefix + uuid.NewString(),
		MimeType: mimeType,
		Data:     data,
		Created:  time.Now(),
	}

	s.mu.Lock()
	s.blobs[b.URL] = b
	s.mu.Unlock()

	s.logger.Debug().Str("url", b.URL).Int64("bytes", b.Size()).Msg("created object URL")
	return b
}

// Resolve looks up a live URL
func (s *Store) Resolve(url string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[url]
	if !ok {
		return nil, ErrRevoked
	}
	return b, nil
}

// Revoke releases url and reports whether it was live
func (s *Store) Revoke(url string) bool {
	s.mu.Lock()
	_, ok := s.blobs[url]
	delete(s.blobs, url)
	s.mu.Unlock()

	if ok {
		s.logger.Debug().Str("url", url).Msg("revoked object URL")
	}
	return ok
}

// Len counts live URLs
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Close revokes every live URL
func (s *Store) Close() error {
	s.mu.Lock()
	n := len(s.blobs)
	clear(s.blobs)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("revoked remaining object URLs")
	}
	return nil
}
