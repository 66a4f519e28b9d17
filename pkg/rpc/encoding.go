package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// EncodeAll and DecodeAll are safe for concurrent use, so one pair serves
// every request.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

type codec struct {
	encode func([]byte) string
	decode func(string) ([]byte, error)
}

var b64 = base64.StdEncoding

var codecs = map[Encoding]codec{
	EncodingBase58: {encode: base58.Encode, decode: base58.Decode},
	EncodingBase64: {encode: b64.EncodeToString, decode: b64.DecodeString},
	EncodingBase64Zstd: {
		encode: func(data []byte) string {
			return b64.EncodeToString(zstdEncoder.EncodeAll(data, nil))
		},
		decode: func(s string) ([]byte, error) {
			compressed, err := b64.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("base64 decode failed: %w", err)
			}
			return zstdDecoder.DecodeAll(compressed, nil)
		},
	},
}

// ParseEncoding maps a client encoding name to an Encoding. An empty name
// selects base64.
func ParseEncoding(s string) (Encoding, bool) {
	if s == "" {
		return EncodingBase64, true
	}
	if _, ok := codecs[Encoding(s)]; !ok {
		return "", false
	}
	return Encoding(s), true
}

// EncodeAccountData returns the [data, encoding] pair used in account
// responses. Unknown encodings fall back to base64.
func EncodeAccountData(data []byte, encoding Encoding) (interface{}, error) {
	c, ok := codecs[encoding]
	if !ok {
		encoding, c = EncodingBase64, codecs[EncodingBase64]
	}
	return []string{c.encode(data), string(encoding)}, nil
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding Encoding) ([]byte, error) {
	c, ok := codecs[encoding]
	if !ok {
		c = codecs[EncodingBase64]
	}
	return c.decode(encoded)
}

// EncodeTransaction encodes a wire transaction for getTransaction. Only
// base58 and base64 apply to transactions.
func EncodeTransaction(data []byte, encoding Encoding) []string {
	if encoding != EncodingBase58 {
		encoding = EncodingBase64
	}
	return []string{codecs[encoding].encode(data), string(encoding)}
}

// DecodeTransaction decodes a wire transaction sent by a client. The
// default is base58, as in sendTransaction.
func DecodeTransaction(encoded string, encoding Encoding) ([]byte, error) {
	switch encoding {
	case "":
		encoding = EncodingBase58
	case EncodingBase58, EncodingBase64:
	default:
		return nil, fmt.Errorf("unsupported transaction encoding %q", encoding)
	}
	return codecs[encoding].decode(encoded)
}

// ApplyDataSlice returns the requested window of data, clamped to its length.
func ApplyDataSlice(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	n := uint64(len(data))
	if slice.Offset >= n {
		return []byte{}
	}
	return data[slice.Offset:min(slice.Offset+slice.Length, n)]
}
