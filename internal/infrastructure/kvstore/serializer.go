package kvstore

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/errors"
)

// compressedPrefix marks payloads that were gzip-compressed before storage.
// The prefix acts as the companion flag: reads detect it and decompress
// without the caller knowing.
const compressedPrefix = "gzip:"

// Serializer converts values to and from the canonical stored form: JSON,
// with transparent gzip compression for payloads at or above the threshold.
type Serializer struct {
	// CompressionThreshold is the serialized size in bytes at which
	// payloads are compressed. Zero disables compression.
	CompressionThreshold int
}

// NewSerializer creates a serializer with the given compression threshold.
func NewSerializer(compressionThreshold int) *Serializer {
	return &Serializer{CompressionThreshold: compressionThreshold}
}

// Encode serializes a value to its stored form.
func (s *Serializer) Encode(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", errors.NewSerialization("serializer.Encode", err)
	}

	if s.CompressionThreshold > 0 && len(data) >= s.CompressionThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return "", errors.NewSerialization("serializer.Encode", err)
		}
		if err := zw.Close(); err != nil {
			return "", errors.NewSerialization("serializer.Encode", err)
		}
		return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
	}

	return string(data), nil
}

// Decode deserializes a stored payload into dest. Payloads written by other
// clients as bare strings are tolerated: when JSON decoding fails and dest
// is a *string, the raw payload is returned as-is.
func (s *Serializer) Decode(raw string, dest any) error {
	payload := raw

	if strings.HasPrefix(raw, compressedPrefix) {
		compressed, err := base64.StdEncoding.DecodeString(raw[len(compressedPrefix):])
		if err != nil {
			return errors.NewSerialization("serializer.Decode", err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return errors.NewSerialization("serializer.Decode", err)
		}
		data, err := io.ReadAll(zr)
		if err != nil {
			return errors.NewSerialization("serializer.Decode", err)
		}
		if err := zr.Close(); err != nil {
			return errors.NewSerialization("serializer.Decode", err)
		}
		payload = string(data)
	}

	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		if sp, ok := dest.(*string); ok {
			*sp = payload
			return nil
		}
		return errors.NewSerialization("serializer.Decode", err)
	}
	return nil
}
