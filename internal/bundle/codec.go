// Package bundle implements the encrypted task-bundle container (C1):
// packing a task's metadata and normalized audio into a single
// authenticated, password-derived-key encrypted blob, and reversing the
// operation on the server side.
//
// The key is derived from a single shared deployment password via
// Argon2id (a per-bundle random salt keeps derived keys distinct even
// though the password never changes), and the container is sealed with
// XChaCha20-Poly1305. Both primitives come from golang.org/x/crypto; the
// container framing around them is a small hand-rolled TLV (see
// DESIGN.md for why no archive library was a better fit for exactly two
// fixed members).
package bundle

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Version pins the KDF/AEAD parameters used by pack, so a future format
// revision can coexist with bundles produced by this one (SPEC_FULL.md §4.1).
const Version = 1

const (
	magic       = "TQB1"
	saltSize    = 16
	argonTime   = 1
	argonMemory = 64 * 1024 // KiB
	argonLanes  = 4
	keySize     = chacha20poly1305.KeySize

	// AudioMemberName is the fixed, well-known name the audio entry must
	// carry inside the container (spec.md §3, Bundle).
	AudioMemberName = "audio.ogg"
	metadataName    = "metadata.json"

	maxEntryNameLen = 255
	maxEntrySize    = 1 << 31 // guards against corrupt/garbage length fields
)

// Metadata is the bundle's cleartext-once-decrypted payload description.
// It is marshaled to JSON and stored as the metadata.json member.
type Metadata struct {
	TaskID  string `json:"task_id"`
	Model   string `json:"model"`
	Version int    `json:"version"`
}

// Pack produces an encrypted bundle containing metadata and the audio
// file found at audioPath. Returns ErrEncoding if the audio file cannot
// be read.
func Pack(password string, meta Metadata, audioPath string) ([]byte, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	meta.Version = Version
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal metadata: %w", err)
	}

	var plain bytes.Buffer
	if err := writeEntry(&plain, metadataName, metaJSON); err != nil {
		return nil, err
	}
	if err := writeEntry(&plain, AudioMemberName, audio); err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := randRead(salt); err != nil {
		return nil, fmt.Errorf("bundle: generate salt: %w", err)
	}
	key := deriveKey(password, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("bundle: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := randRead(nonce); err != nil {
		return nil, fmt.Errorf("bundle: generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plain.Bytes(), nil)

	out := bytes.NewBuffer(nil)
	out.WriteString(magic)
	out.WriteByte(Version)
	out.WriteByte(byte(len(salt)))
	out.Write(salt)
	out.WriteByte(byte(len(nonce)))
	out.Write(nonce)
	out.Write(ciphertext)

	return out.Bytes(), nil
}

// Unpacked is the result of successfully unpacking a bundle: the
// metadata record and the path of the audio file, written into workDir
// under its fixed member name.
type Unpacked struct {
	Metadata  Metadata
	AudioPath string
}

// Unpack verifies and decrypts data, writing the contained audio file
// into workDir and returning the parsed metadata alongside its path.
//
// Failure modes map onto SPEC_FULL.md §7: ErrAuth on key mismatch or
// tampering, ErrSchema on malformed/missing metadata, ErrFormat when the
// audio member is missing or misnamed.
func Unpack(password string, data []byte, workDir string) (*Unpacked, error) {
	if len(data) < len(magic)+1+1+saltSize+1 {
		return nil, fmt.Errorf("%w: truncated container", ErrFormat)
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	off := len(magic)
	version := data[off]
	off++
	_ = version // only one version exists today; future versions would branch here

	saltLen := int(data[off])
	off++
	if off+saltLen > len(data) {
		return nil, fmt.Errorf("%w: truncated salt", ErrFormat)
	}
	salt := data[off : off+saltLen]
	off += saltLen

	if off >= len(data) {
		return nil, fmt.Errorf("%w: truncated nonce length", ErrFormat)
	}
	nonceLen := int(data[off])
	off++
	if off+nonceLen > len(data) {
		return nil, fmt.Errorf("%w: truncated nonce", ErrFormat)
	}
	nonce := data[off : off+nonceLen]
	off += nonceLen

	ciphertext := data[off:]

	key := deriveKey(password, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("bundle: init aead: %w", err)
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	entries, err := readEntries(plain)
	if err != nil {
		return nil, err
	}

	metaEntry, ok := entries[metadataName]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrSchema, metadataName)
	}
	var meta Metadata
	if err := json.Unmarshal(metaEntry, &meta); err != nil || meta.TaskID == "" {
		return nil, fmt.Errorf("%w: invalid metadata record", ErrSchema)
	}

	audioEntry, ok := entries[AudioMemberName]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrFormat, AudioMemberName)
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create workdir: %w", err)
	}
	audioPath := filepath.Join(workDir, AudioMemberName)
	if err := os.WriteFile(audioPath, audioEntry, 0o644); err != nil {
		return nil, fmt.Errorf("bundle: write audio: %w", err)
	}

	return &Unpacked{Metadata: meta, AudioPath: audioPath}, nil
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonLanes, keySize)
}

// writeEntry appends a length-prefixed (name, data) record to buf.
func writeEntry(buf *bytes.Buffer, name string, data []byte) error {
	if len(name) > maxEntryNameLen {
		return fmt.Errorf("bundle: entry name too long: %s", name)
	}
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
	return nil
}

// readEntries parses the plaintext TLV stream into a name->data map.
// Exactly two members are expected (spec.md §3) but this parser tolerates
// any count so callers can give precise ErrSchema/ErrFormat diagnostics.
func readEntries(plain []byte) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	off := 0
	for off < len(plain) {
		if off+1 > len(plain) {
			return nil, fmt.Errorf("%w: truncated entry name length", ErrSchema)
		}
		nameLen := int(plain[off])
		off++
		if off+nameLen > len(plain) {
			return nil, fmt.Errorf("%w: truncated entry name", ErrSchema)
		}
		name := string(plain[off : off+nameLen])
		off += nameLen

		if off+4 > len(plain) {
			return nil, fmt.Errorf("%w: truncated entry length", ErrSchema)
		}
		dataLen := int(binary.BigEndian.Uint32(plain[off : off+4]))
		off += 4
		if dataLen < 0 || dataLen > maxEntrySize || off+dataLen > len(plain) {
			return nil, fmt.Errorf("%w: truncated entry data", ErrSchema)
		}
		entries[name] = plain[off : off+dataLen]
		off += dataLen
	}
	return entries, nil
}
