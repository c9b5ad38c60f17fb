package messenger

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// Signature headers sent by the platform
const (
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"
)

var (
	// ErrMissingSignature means neither signature header was present
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature means the signature did not match the body
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature checks the webhook body against the app secret. sig256 is the
// X-Hub-Signature-256 header value, sig1 the legacy X-Hub-Signature value; the
// sha256 header wins when both are present.
func VerifySignature(appSecret string, body []byte, sig256, sig1 string) error {
	switch {
	case sig256 != "":
		return verify(sha256.New, "sha256=", appSecret, body, sig256)
	case sig1 != "":
		return verify(sha1.New, "sha1=", appSecret, body, sig1)
	default:
		return ErrMissingSignature
	}
}

func verify(h func() hash.Hash, prefix, secret string, body []byte, header string) error {
	if !strings.HasPrefix(header, prefix) {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value for body
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SignSHA1 returns the legacy X-Hub-Signature value for body
func SignSHA1(appSecret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(appSecret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}
