package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// encrypt builds an RNCryptor v3 password envelope the way the mobile
// client does, so Decrypt can be exercised against real input.
func encrypt(t *testing.T, password, plaintext string) []byte {
	t.Helper()

	encSalt := make([]byte, saltLen)
	hmacSalt := make([]byte, saltLen)
	iv := make([]byte, aes.BlockSize)
	for _, b := range [][]byte{encSalt, hmacSalt, iv} {
		if _, err := rand.Read(b); err != nil {
			t.Fatalf("rand: %v", err)
		}
	}

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(pad)}, pad)...)

	encKey := pbkdf2.Key([]byte(password), encSalt, pbkdf2Rounds, keyLen, sha1.New)
	block, err := aes.NewCipher(encKey)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	env := []byte{envVersion, envOptions}
	env = append(env, encSalt...)
	env = append(env, hmacSalt...)
	env = append(env, iv...)
	env = append(env, ciphertext...)

	hmacKey := pbkdf2.Key([]byte(password), hmacSalt, pbkdf2Rounds, keyLen, sha1.New)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(env)
	env = append(env, mac.Sum(nil)...)

	return []byte(base64.StdEncoding.EncodeToString(env))
}

func TestDecryptRoundTrip(t *testing.T) {
	codec := NewCodec("s3cret")
	want := `{"coords":{"latitude":59.33,"longitude":18.06},"timestamp":"2023-04-01T10:00:00Z"}`

	got, err := codec.Decrypt(encrypt(t, "s3cret", want))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != want {
		t.Errorf("Decrypt = %q, want %q", got, want)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	codec := NewCodec("s3cret")
	if _, err := codec.Decrypt(encrypt(t, "other", `{"a":1}`)); err == nil {
		t.Fatal("Decrypt accepted an envelope under the wrong password")
	}
}

func TestDecryptTamperedEnvelope(t *testing.T) {
	codec := NewCodec("s3cret")
	env := encrypt(t, "s3cret", `{"a":1}`)

	raw, err := base64.StdEncoding.DecodeString(string(env))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[envHeaderLen] ^= 0x01 // flip one ciphertext bit
	tampered := []byte(base64.StdEncoding.EncodeToString(raw))

	if _, err := codec.Decrypt(tampered); err == nil {
		t.Fatal("Decrypt accepted a tampered envelope")
	}
}

func TestDecryptGarbage(t *testing.T) {
	codec := NewCodec("s3cret")
	for _, in := range []string{"", "not base64 !!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := codec.Decrypt([]byte(in)); err == nil {
			t.Errorf("Decrypt(%q) did not fail", in)
		}
	}
}

func TestIsEncryptedRequest(t *testing.T) {
	enc := httptest.NewRequest("POST", "/locations", nil)
	enc.Header.Set("Content-Type", "application/octet-stream")
	if !IsEncryptedRequest(enc) {
		t.Error("octet-stream request not classified as encrypted")
	}

	plain := httptest.NewRequest("POST", "/locations", nil)
	plain.Header.Set("Content-Type", "application/json")
	if IsEncryptedRequest(plain) {
		t.Error("json request classified as encrypted")
	}
}
