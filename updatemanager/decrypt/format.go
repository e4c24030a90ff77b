package decrypt

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted package layout:
//
//	magic[8] | argon time uint32 | argon memory KiB uint32 | argon threads uint8 | salt[16] | nonce prefix[16]
//	chunk*   sealed with XChaCha20-Poly1305, nonce = prefix || counter, AD = header || final flag
const (
	magic          = "NBUPENC1"
	saltSize       = 16
	noncePrefixLen = chacha20poly1305.NonceSizeX - 8
	headerSize     = len(magic) + 4 + 4 + 1 + saltSize + noncePrefixLen
	chunkSize      = 64 * 1024
	keySize        = chacha20poly1305.KeySize

	maxArgonTime   = 16
	maxArgonMemory = 1024 * 1024 // 1GiB in KiB
)

var (
	ErrCredentialRequired = errors.New("package is encrypted but no credential is configured")
	ErrWrongCredential    = errors.New("package cannot be decrypted with the configured credential")
	ErrCorrupted          = errors.New("encrypted package is corrupted")
	ErrNotEncrypted       = errors.New("package is not encrypted")
)

// KDFParams tunes the Argon2id key derivation
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

type header struct {
	params      KDFParams
	salt        [saltSize]byte
	noncePrefix [noncePrefixLen]byte
	raw         []byte
}

func (h *header) marshal() []byte {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, magic...)
	buf = binary.BigEndian.AppendUint32(buf, h.params.Time)
	buf = binary.BigEndian.AppendUint32(buf, h.params.Memory)
	buf = append(buf, h.params.Threads)
	buf = append(buf, h.salt[:]...)
	buf = append(buf, h.noncePrefix[:]...)
	return buf
}

func parseHeader(buf []byte) (*header, error) {
	if len(buf) != headerSize || string(buf[:len(magic)]) != magic {
		return nil, ErrNotEncrypted
	}

	h := &header{raw: buf}
	off := len(magic)
	h.params.Time = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.params.Memory = binary.BigEndian.Uint32(buf[off:])
	off += 4
	h.params.Threads = buf[off]
	off++
	copy(h.salt[:], buf[off:off+saltSize])
	off += saltSize
	copy(h.noncePrefix[:], buf[off:])

	if h.params.Time == 0 || h.params.Time > maxArgonTime ||
		h.params.Memory == 0 || h.params.Memory > maxArgonMemory || h.params.Threads == 0 {
		return nil, fmt.Errorf("%w: unsupported key derivation parameters", ErrCorrupted)
	}
	return h, nil
}

func deriveKey(cred Credential, h *header) []byte {
	return argon2.IDKey(cred.secret, h.salt[:], h.params.Time, h.params.Memory, h.params.Threads, keySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func chunkNonce(h *header, counter uint64) []byte {
	nonce := make([]byte, 0, chacha20poly1305.NonceSizeX)
	nonce = append(nonce, h.noncePrefix[:]...)
	return binary.BigEndian.AppendUint64(nonce, counter)
}

func additionalData(h *header, final bool) []byte {
	ad := make([]byte, 0, len(h.raw)+1)
	ad = append(ad, h.raw...)
	if final {
		return append(ad, 1)
	}
	return append(ad, 0)
}

// Encrypt writes the encrypted form of src to dst
func Encrypt(dst io.Writer, src io.Reader, cred Credential, params KDFParams) error {
	if cred.IsZero() {
		return ErrCredentialRequired
	}

	h := &header{params: params}
	if _, err := rand.Read(h.salt[:]); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(h.noncePrefix[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	h.raw = h.marshal()

	key := deriveKey(cred, h)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	if _, err := dst.Write(h.raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	in := bufio.NewReaderSize(src, chunkSize)
	plain := make([]byte, chunkSize)
	var sealed []byte
	for counter := uint64(0); ; counter++ {
		n, err := io.ReadFull(in, plain)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read plaintext: %w", err)
		}

		final := n < chunkSize
		if !final {
			if _, perr := in.Peek(1); errors.Is(perr, io.EOF) {
				final = true
			}
		}

		sealed = aead.Seal(sealed[:0], chunkNonce(h, counter), plain[:n], additionalData(h, final))
		if _, err := dst.Write(sealed); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}

		if final {
			return nil
		}
	}
}

// Decrypt writes the plaintext of src to dst. checkpoint is called before each chunk
// and aborts the operation when it returns an error.
func Decrypt(dst io.Writer, src io.Reader, cred Credential, checkpoint func() error) error {
	in := bufio.NewReaderSize(src, chunkSize+chacha20poly1305.Overhead)

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(in, raw); err != nil {
		return ErrNotEncrypted
	}
	h, err := parseHeader(raw)
	if err != nil {
		return err
	}

	if cred.IsZero() {
		return ErrCredentialRequired
	}

	key := deriveKey(cred, h)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	sealed := make([]byte, chunkSize+chacha20poly1305.Overhead)
	var plain []byte
	for counter := uint64(0); ; counter++ {
		if checkpoint != nil {
			if err := checkpoint(); err != nil {
				return err
			}
		}

		n, err := io.ReadFull(in, sealed)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read chunk: %w", err)
		}
		if n < chacha20poly1305.Overhead {
			return fmt.Errorf("%w: truncated chunk", ErrCorrupted)
		}

		final := n < len(sealed)
		if !final {
			if _, perr := in.Peek(1); errors.Is(perr, io.EOF) {
				final = true
			}
		}

		plain, err = aead.Open(plain[:0], chunkNonce(h, counter), sealed[:n], additionalData(h, final))
		if err != nil {
			if counter == 0 {
				return ErrWrongCredential
			}
			return fmt.Errorf("%w: chunk %d failed authentication", ErrCorrupted, counter)
		}

		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("write plaintext: %w", err)
		}

		if final {
			return nil
		}
	}
}

// IsEncrypted reports whether r starts with the encrypted package magic
func IsEncrypted(r io.Reader) (bool, error) {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return string(buf) == magic, nil
}
