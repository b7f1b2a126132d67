package rpc

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Encoding types supported by Solana RPC
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
	EncodingJSONParsed = "jsonParsed"
)

// maxBase58Data is the largest account data getAccountInfo encodes as base58.
const maxBase58Data = 128

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

// zstdCodecs returns shared stateless encoder and decoder for EncodeAll and
// DecodeAll, which are safe for concurrent use.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder) {
	zstdOnce.Do(func() {
		zstdEncoder, _ = zstd.NewWriter(nil)
		zstdDecoder, _ = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder
}

// EncodeBase58 encodes bytes to base58 string.
func EncodeBase58(data []byte) string {
	return base58.Encode(data)
}

// DecodeBase58 decodes a base58 string to bytes.
func DecodeBase58(s string) ([]byte, error) {
	return base58.Decode(s)
}

// EncodeBase64 encodes bytes to base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 string to bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// DecodePubkey decodes a base58 string to pubkey.
func DecodePubkey(s string) (types.Pubkey, error) {
	return types.PubkeyFromBase58(s)
}

// DecodeSignature decodes a base58 string to signature.
func DecodeSignature(s string) (types.Signature, error) {
	return types.SignatureFromBase58(s)
}

// EncodeAccountData encodes account data in the specified encoding.
// Returns a tuple of [data, encoding] for Solana compatibility.
func EncodeAccountData(data []byte, encoding string) ([]interface{}, error) {
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58Data {
			return nil, fmt.Errorf("data too large for base58 encoding, use base64")
		}
		return []interface{}{EncodeBase58(data), EncodingBase58}, nil

	case EncodingBase64, "", EncodingJSONParsed:
		return []interface{}{EncodeBase64(data), EncodingBase64}, nil

	case EncodingBase64Zstd:
		enc, _ := zstdCodecs()
		compressed := enc.EncodeAll(data, nil)
		return []interface{}{EncodeBase64(compressed), EncodingBase64Zstd}, nil

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// DecodeAccountData decodes account data from the specified encoding.
func DecodeAccountData(encoded string, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return DecodeBase58(encoded)

	case EncodingBase64, "":
		return DecodeBase64(encoded)

	case EncodingBase64Zstd:
		compressed, err := DecodeBase64(encoded)
		if err != nil {
			return nil, err
		}
		_, dec := zstdCodecs()
		data, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress account data: %w", err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ValidateEncoding validates that an encoding string is supported.
func ValidateEncoding(encoding string) error {
	switch encoding {
	case EncodingBase58, EncodingBase64, EncodingBase64Zstd, EncodingJSONParsed, "":
		return nil
	default:
		return fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// SliceData returns a slice of data based on offset and length.
// Returns the full data if slice is nil.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}

	dataLen := uint64(len(data))
	if slice.Offset >= dataLen {
		return []byte{}
	}

	end := slice.Offset + slice.Length
	if end > dataLen || end < slice.Offset {
		end = dataLen
	}

	return data[slice.Offset:end]
}
