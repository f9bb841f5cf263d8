// Package metacodec turns a document's plaintext metadata (display name,
// MIME type, key alias) into an opaque token that can be used as a remote
// entry name, and back.
//
// Token layout before base64url encoding:
//
//	version(1) | len(alias)(1) | alias | nonce(12) | AES-GCM(record)
//
// The record is a deterministic protobuf Struct. The alias travels in clear so
// the right key can be picked; it is also bound as additional data.
package metacodec

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/cryptox"
	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	tokenVersion = 1

	// MaxTokenLength keeps tokens usable as object keys and file names on
	// every supported backend.
	MaxTokenLength = 1024

	DefaultCacheSize = 4096
)

var ErrTokenTooLong = errors.New("metadata token too long")

var encoding = base64.RawURLEncoding

// Metadata is the plaintext record carried by a token.
type Metadata struct {
	DisplayName string
	MimeType    string
	KeyAlias    string
}

// Keys resolves an alias to its key.
type Keys interface {
	Key(alias string) ([]byte, error)
}

type Codec struct {
	keys  Keys
	cache *lru.Cache[string, Metadata]
}

// New returns a Codec that caches up to cacheSize decoded tokens.
// A non-positive size uses DefaultCacheSize.
func New(keys Keys, cacheSize int) (*Codec, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Metadata](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Codec{keys: keys, cache: cache}, nil
}

// Encode seals m under the key of m.KeyAlias. Two encodings of the same
// metadata differ because of the random nonce.
func (c *Codec) Encode(m Metadata) (string, error) {
	if m.KeyAlias == "" || len(m.KeyAlias) > 255 {
		return "", fmt.Errorf("invalid key alias %q", m.KeyAlias)
	}
	key, err := c.keys.Key(m.KeyAlias)
	if err != nil {
		return "", err
	}

	record, err := structpb.NewStruct(map[string]any{
		"name":  m.DisplayName,
		"mime":  m.MimeType,
		"alias": m.KeyAlias,
	})
	if err != nil {
		return "", err
	}
	plaintext, err := proto.MarshalOptions{Deterministic: true}.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	header := append([]byte{tokenVersion, byte(len(m.KeyAlias))}, m.KeyAlias...)
	sealed, err := cryptox.Seal(key, plaintext, header)
	if err != nil {
		return "", fmt.Errorf("seal metadata: %w", err)
	}

	token := encoding.EncodeToString(append(header, sealed...))
	if len(token) > MaxTokenLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTokenTooLong, len(token))
	}
	c.cache.Add(token, m)
	return token, nil
}

// Decode opens token. Any malformed input or missing key yields
// common.ErrMetadataDecryption. A cached token is served only while its
// alias still resolves to a key.
func (c *Codec) Decode(token string) (Metadata, error) {
	if m, ok := c.cache.Get(token); ok {
		if _, err := c.keys.Key(m.KeyAlias); err != nil {
			c.cache.Remove(token)
			return Metadata{}, fmt.Errorf("%w: %w", common.ErrMetadataDecryption, err)
		}
		return m, nil
	}

	m, err := c.decode(token)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", common.ErrMetadataDecryption, err)
	}
	c.cache.Add(token, m)
	return m, nil
}

func (c *Codec) decode(token string) (Metadata, error) {
	if len(token) > MaxTokenLength {
		return Metadata{}, ErrTokenTooLong
	}
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return Metadata{}, fmt.Errorf("malformed token: %w", err)
	}
	if len(raw) < 2 || raw[0] != tokenVersion {
		return Metadata{}, errors.New("unsupported token version")
	}
	aliasEnd := 2 + int(raw[1])
	if len(raw) < aliasEnd {
		return Metadata{}, errors.New("truncated token")
	}
	alias := string(raw[2:aliasEnd])

	key, err := c.keys.Key(alias)
	if err != nil {
		return Metadata{}, err
	}
	plaintext, err := cryptox.Open(key, raw[aliasEnd:], raw[:aliasEnd])
	if err != nil {
		return Metadata{}, fmt.Errorf("open metadata: %w", err)
	}

	var record structpb.Struct
	if err := proto.Unmarshal(plaintext, &record); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	fields := record.GetFields()
	m := Metadata{
		DisplayName: fields["name"].GetStringValue(),
		MimeType:    fields["mime"].GetStringValue(),
		KeyAlias:    fields["alias"].GetStringValue(),
	}
	if m.KeyAlias != alias {
		return Metadata{}, errors.New("key alias mismatch")
	}
	if m.DisplayName == "" {
		return Metadata{}, errors.New("empty display name")
	}
	return m, nil
}

// TokenFromContent converts the bytes of a folder's metadata file into a token.
func TokenFromContent(data []byte) string {
	return encoding.EncodeToString(data)
}

// ContentFromToken returns the bytes written into a folder's metadata file.
func ContentFromToken(token string) ([]byte, error) {
	return encoding.DecodeString(token)
}
