package cryptox

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encrypt(t *testing.T, key, plain []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, EncryptStream(context.Background(), key, bytes.NewReader(plain), &out, nil))
	return out.Bytes()
}

func TestStream_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{9}, KeySize)

	sizes := []int{0, 1, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17}
	for _, size := range sizes {
		plain := bytes.Repeat([]byte{0xAB}, size)
		cipherText := encrypt(t, key, plain)

		var got bytes.Buffer
		require.NoError(t, DecryptStream(context.Background(), key, bytes.NewReader(cipherText), &got, nil), "size %d", size)
		assert.True(t, bytes.Equal(plain, got.Bytes()), "size %d", size)
		assert.Equal(t, size, got.Len())
	}
}

func TestStream_ReportsProgress(t *testing.T) {
	key := bytes.Repeat([]byte{9}, KeySize)
	plain := make([]byte, 2*ChunkSize+10)

	var reports []int64
	var out bytes.Buffer
	err := EncryptStream(context.Background(), key, bytes.NewReader(plain), &out, func(done int64) {
		reports = append(reports, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{ChunkSize, 2 * ChunkSize, 2*ChunkSize + 10}, reports)
}

func TestDecryptStream_DetectsTampering(t *testing.T) {
	key := bytes.Repeat([]byte{9}, KeySize)
	cipherText := encrypt(t, key, bytes.Repeat([]byte{1}, 2*ChunkSize))

	tests := []struct {
		name string
		data []byte
	}{
		{"flipped byte", func() []byte {
			c := bytes.Clone(cipherText)
			c[headerSize+5] ^= 0xFF
			return c
		}()},
		{"truncated at chunk boundary", cipherText[:headerSize+ChunkSize+tagSize]},
		{"truncated header", cipherText[:3]},
		{"bad magic", append([]byte("XXXX"), cipherText[4:]...)},
		{"header only", cipherText[:headerSize]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := DecryptStream(context.Background(), key, bytes.NewReader(tt.data), &out, nil)
			require.ErrorIs(t, err, common.ErrDecryption)
		})
	}
}

func TestDecryptStream_WrongKey(t *testing.T) {
	cipherText := encrypt(t, bytes.Repeat([]byte{9}, KeySize), []byte("secret"))

	var out bytes.Buffer
	err := DecryptStream(context.Background(), bytes.Repeat([]byte{8}, KeySize), bytes.NewReader(cipherText), &out, nil)
	require.ErrorIs(t, err, common.ErrDecryption)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncryptStream_Failures(t *testing.T) {
	key := bytes.Repeat([]byte{9}, KeySize)

	err := EncryptStream(context.Background(), key, bytes.NewReader([]byte("x")), failingWriter{}, nil)
	require.ErrorIs(t, err, common.ErrEncryption)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err = EncryptStream(ctx, key, bytes.NewReader([]byte("x")), &out, nil)
	require.ErrorIs(t, err, common.ErrEncryption)
	require.ErrorIs(t, err, context.Canceled)

	err = EncryptStream(context.Background(), []byte("bad"), bytes.NewReader([]byte("x")), &out, nil)
	require.ErrorIs(t, err, common.ErrEncryption)
}
