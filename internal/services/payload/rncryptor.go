// Package payload decodes location request bodies. Mobile clients either
// send plain JSON or an RNCryptor v3 password envelope; the two are told
// apart by the declared content type, never by attempting decryption.
package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ContentTypeEncrypted is the request marker for encrypted bodies.
const ContentTypeEncrypted = "application/octet-stream"

// RNCryptor v3 password envelope layout.
const (
	envVersion    = 3
	envOptions    = 1 // password-based keys
	saltLen       = 8
	keyLen        = 32
	hmacLen       = sha256.Size
	pbkdf2Rounds  = 10000
	envHeaderLen  = 2 + 2*saltLen + aes.BlockSize
	envMinimalLen = envHeaderLen + aes.BlockSize + hmacLen
)

// IsEncryptedRequest classifies a request by its declared content type.
func IsEncryptedRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, ContentTypeEncrypted)
}

// Codec decrypts RNCryptor envelopes under a password fixed at startup.
type Codec struct {
	password []byte
}

func NewCodec(password string) *Codec {
	return &Codec{password: []byte(password)}
}

// Decrypt unwraps a base64 RNCryptor v3 envelope. It either returns the
// full plaintext or an error; there is no partial success. The envelope is
// version(1) options(1) encSalt(8) hmacSalt(8) iv(16) ciphertext hmac(32)
// with PBKDF2 keys and an HMAC-SHA256 trailer over everything before it.
func (c *Codec) Decrypt(raw []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("payload: decode base64: %w", err)
	}
	if len(data) < envMinimalLen {
		return nil, errors.New("payload: envelope too short")
	}
	if data[0] != envVersion || data[1]&envOptions == 0 {
		return nil, errors.New("payload: unsupported envelope format")
	}

	encSalt := data[2 : 2+saltLen]
	hmacSalt := data[2+saltLen : 2+2*saltLen]
	iv := data[2+2*saltLen : envHeaderLen]
	ciphertext := data[envHeaderLen : len(data)-hmacLen]
	trailer := data[len(data)-hmacLen:]

	hmacKey := pbkdf2.Key(c.password, hmacSalt, pbkdf2Rounds, keyLen, sha1.New)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(data[:len(data)-hmacLen])
	if !hmac.Equal(mac.Sum(nil), trailer) {
		return nil, errors.New("payload: hmac mismatch")
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("payload: ciphertext not block aligned")
	}
	encKey := pbkdf2.Key(c.password, encSalt, pbkdf2Rounds, keyLen, sha1.New)
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return stripPKCS7(plain)
}

func stripPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("payload: empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(b) {
		return nil, errors.New("payload: bad padding")
	}
	if !bytes.Equal(b[len(b)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, errors.New("payload: bad padding")
	}
	return b[:len(b)-pad], nil
}
