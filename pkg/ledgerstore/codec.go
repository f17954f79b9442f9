package ledgerstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations follows the teacher's own key-derivation default —
// chosen as a cost acceptable at process-startup time, not per-request.
const pbkdf2Iterations = 100_000

// saltSize and keySize fix a 256-bit AES key derived from a 128-bit salt.
const (
	saltSize = 16
	keySize  = 32
)

// ErrDecryptionFailed reports that a stored entry's AEAD tag did not
// verify — either the wrong secret was supplied or the bytes were
// tampered with.
var ErrDecryptionFailed = errors.New("ledgerstore: decryption failed")

// ErrChecksumMismatch reports that a stored entry's xxhash64 checksum did
// not match its payload — disk corruption or truncation, checked before
// any decompression or decryption is attempted.
var ErrChecksumMismatch = errors.New("ledgerstore: checksum mismatch")

const checksumSize = 8

// Codec compresses (zstd) and optionally encrypts (AES-256-GCM, key
// derived via PBKDF2-HMAC-SHA256) the bytes Store persists per entry. The
// zero Codec compresses but never encrypts.
type Codec struct {
	// Secret enables encryption when non-empty. The AES key is derived
	// from it via PBKDF2 once per Encode/Decode with a freshly generated (Encode) or
	// wire-carried (Decode) salt — see the wire layout below.
	Secret string
}

// wire layout: [checksum(8, xxhash64 of everything that follows)][body]
// where body is, when Secret != "": [salt(16)][nonce(12)][ciphertext...]
// (ciphertext is the zstd-compressed plaintext sealed under GCM), and when
// Secret == "": the zstd-compressed plaintext directly.

// Encode compresses raw, optionally encrypts it under a freshly generated
// salt and nonce when a Secret is configured, and prefixes the result with
// an xxhash64 checksum so Decode can detect on-disk corruption cheaply,
// before spending anything on decompression or AEAD verification.
func (c Codec) Encode(raw []byte) ([]byte, error) {
	compressed, err := zstdCompress(raw)
	if err != nil {
		return nil, err
	}

	var body []byte
	if c.Secret == "" {
		body = compressed
	} else {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("ledgerstore: generating salt: %w", err)
		}
		gcm, err := c.gcm(salt)
		if err != nil {
			return nil, err
		}
		nonce := make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("ledgerstore: generating nonce: %w", err)
		}

		sealed := gcm.Seal(nil, nonce, compressed, nil)
		body = make([]byte, 0, saltSize+len(nonce)+len(sealed))
		body = append(body, salt...)
		body = append(body, nonce...)
		body = append(body, sealed...)
	}

	out := make([]byte, checksumSize, checksumSize+len(body))
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(body))
	return append(out, body...), nil
}

// Decode reverses Encode.
func (c Codec) Decode(data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, ErrChecksumMismatch
	}
	want := binary.LittleEndian.Uint64(data[:checksumSize])
	body := data[checksumSize:]
	if xxhash.Sum64(body) != want {
		return nil, ErrChecksumMismatch
	}

	if c.Secret == "" {
		return zstdDecompress(body)
	}

	if len(body) < saltSize {
		return nil, ErrDecryptionFailed
	}
	salt := body[:saltSize]
	gcm, err := c.gcm(salt)
	if err != nil {
		return nil, err
	}
	rest := body[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	compressed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return zstdDecompress(compressed)
}

func (c Codec) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(c.Secret), salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func zstdCompress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func zstdDecompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}
