// Package garbage generates an unbounded, deterministic stream of
// random-looking bytes from a 64-bit seed.
//
// The stream is AES-128 in counter mode. Key and IV come from a PCG
// generator seeded with the seed, so two processes given the same seed
// produce the same bytes. Nothing about the output is secret; the cipher is
// only there so the data is incompressible and cannot be deduplicated by
// the storage underneath.
package garbage

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
)

// pcgStream is the second PCG word. It is fixed so the seed alone picks the key.
const pcgStream = 0x6275726e696e2d31 // "burnin-1"

var (
	// ErrChunkSize is returned for a non-positive chunk size.
	ErrChunkSize = errors.New("chunk size must be positive")
	// ErrCipher wraps failures from the underlying block cipher.
	ErrCipher = errors.New("keystream cipher")
)

// Stream produces the garbage bytes for one seed. A Stream is not safe for
// concurrent use, but any number of independent Streams may run at once.
type Stream struct {
	ctr     cipher.Stream
	chunk   int
	scratch []byte // keystream for one chunk, rounded up to whole AES blocks
}

// Keys derives the AES key and IV for a seed.
func Keys(seed uint64) (key, iv [aes.BlockSize]byte) {
	rng := rand.New(rand.NewPCG(seed, pcgStream))
	binary.LittleEndian.PutUint64(key[0:], rng.Uint64())
	binary.LittleEndian.PutUint64(key[8:], rng.Uint64())
	binary.LittleEndian.PutUint64(iv[0:], rng.Uint64())
	binary.LittleEndian.PutUint64(iv[8:], rng.Uint64())
	return key, iv
}

// New returns a Stream positioned at offset 0 that hands out data in chunks
// of chunkSize bytes.
func New(seed uint64, chunkSize int) (*Stream, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrChunkSize, chunkSize)
	}
	key, iv := Keys(seed)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	rounded := (chunkSize + aes.BlockSize - 1) / aes.BlockSize * aes.BlockSize
	return &Stream{
		ctr:     cipher.NewCTR(block, iv[:]),
		chunk:   chunkSize,
		scratch: make([]byte, rounded),
	}, nil
}

// ChunkSize reports the chunk size the stream was built with.
func (s *Stream) ChunkSize() int { return s.chunk }

// Fill overwrites buf with the next bytes of the stream, one whole chunk at
// a time, and returns the number of bytes written. A trailing remainder of
// buf shorter than one chunk is left as it was.
//
// Every chunk consumes a whole number of AES blocks of keystream. With a
// chunk size that is not a multiple of 16 the unused tail of the last block
// is dropped, so streams read with different chunk sizes drift apart.
func (s *Stream) Fill(buf []byte) (int, error) {
	n := 0
	for len(buf)-n >= s.chunk {
		if err := s.next(buf[n : n+s.chunk]); err != nil {
			return n, err
		}
		n += s.chunk
	}
	return n, nil
}

// Read implements io.Reader over whole chunks. It never returns io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) < s.chunk {
		return 0, fmt.Errorf("read buffer of %d bytes is smaller than one chunk (%d)", len(p), s.chunk)
	}
	return s.Fill(p)
}

func (s *Stream) next(dst []byte) (err error) {
	// cipher.Stream panics rather than returning errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCipher, r)
		}
	}()
	clear(s.scratch)
	s.ctr.XORKeyStream(s.scratch, s.scratch)
	copy(dst, s.scratch)
	return nil
}
