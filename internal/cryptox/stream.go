package cryptox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
)

// Stream layout: magic, 7-byte nonce prefix, then chunks of at most
// ChunkSize plaintext bytes sealed with AES-GCM. A chunk nonce is
// prefix || big-endian counter || last-chunk flag, so reordered, dropped or
// truncated chunks fail authentication. An empty input yields one empty
// last chunk.
const (
	ChunkSize = 64 * 1024

	streamMagic     = "SCE1"
	noncePrefixSize = 7
	headerSize      = len(streamMagic) + noncePrefixSize
	tagSize         = 16
)

// ProgressFunc receives the number of plaintext bytes processed so far.
type ProgressFunc func(done int64)

func chunkNonce(prefix []byte, counter uint32, last bool) []byte {
	nonce := make([]byte, 12)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[noncePrefixSize:], counter)
	if last {
		nonce[11] = 1
	}
	return nonce
}

// readChunk fills buf and reports whether it holds the final chunk.
func readChunk(r *bufio.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	case err != nil:
		return n, false, err
	}
	if _, err := r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

// EncryptStream encrypts src into dst under key. Every failure, including
// context cancellation, is wrapped with common.ErrEncryption.
func EncryptStream(ctx context.Context, key []byte, src io.Reader, dst io.Writer, progress ProgressFunc) error {
	aead, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}

	prefix := common.GenerateRandByteArray(noncePrefixSize)
	if _, err := dst.Write(append([]byte(streamMagic), prefix...)); err != nil {
		return fmt.Errorf("%w: write header: %w", common.ErrEncryption, err)
	}

	br := bufio.NewReaderSize(src, ChunkSize)
	buf := make([]byte, ChunkSize)
	out := make([]byte, 0, ChunkSize+tagSize)

	var done int64
	for counter := uint32(0); ; counter++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrEncryption, err)
		}

		n, last, err := readChunk(br, buf)
		if err != nil {
			return fmt.Errorf("%w: read: %w", common.ErrEncryption, err)
		}

		out = aead.Seal(out[:0], chunkNonce(prefix, counter, last), buf[:n], nil)
		if _, err := dst.Write(out); err != nil {
			return fmt.Errorf("%w: write: %w", common.ErrEncryption, err)
		}

		done += int64(n)
		if progress != nil {
			progress(done)
		}
		if last {
			return nil
		}
		if counter == ^uint32(0) {
			return fmt.Errorf("%w: stream too long", common.ErrEncryption)
		}
	}
}

// DecryptStream reverses EncryptStream. Every failure is wrapped with
// common.ErrDecryption; plaintext already written to dst before an
// authentication failure must be discarded by the caller.
func DecryptStream(ctx context.Context, key []byte, src io.Reader, dst io.Writer, progress ProgressFunc) error {
	aead, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return fmt.Errorf("%w: read header: %w", common.ErrDecryption, err)
	}
	if !bytes.Equal(header[:len(streamMagic)], []byte(streamMagic)) {
		return fmt.Errorf("%w: unknown stream format", common.ErrDecryption)
	}
	prefix := header[len(streamMagic):]

	br := bufio.NewReaderSize(src, ChunkSize+tagSize)
	buf := make([]byte, ChunkSize+tagSize)
	out := make([]byte, 0, ChunkSize)

	var done int64
	for counter := uint32(0); ; counter++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrDecryption, err)
		}

		n, last, err := readChunk(br, buf)
		if err != nil {
			return fmt.Errorf("%w: read: %w", common.ErrDecryption, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: truncated stream", common.ErrDecryption)
		}

		out, err = aead.Open(out[:0], chunkNonce(prefix, counter, last), buf[:n], nil)
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %w", common.ErrDecryption, counter, err)
		}
		if _, err := dst.Write(out); err != nil {
			return fmt.Errorf("%w: write: %w", common.ErrDecryption, err)
		}

		done += int64(len(out))
		if progress != nil {
			progress(done)
		}
		if last {
			return nil
		}
	}
}
