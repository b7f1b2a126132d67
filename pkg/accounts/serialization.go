package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Serialization format:
// - lamports:   8 bytes (little-endian uint64)
// - data_len:   4 bytes (little-endian uint32)
// - data:       data_len bytes
// - owner:      32 bytes
// - executable: 1 byte (0 or 1)
//
// Total fixed size: 8 + 4 + 32 + 1 = 45 bytes + variable data

const (
	serializationHeaderSize = 8 + 4  // lamports + data_len
	serializationFooterSize = 32 + 1 // owner + executable
	serializationMinSize    = serializationHeaderSize + serializationFooterSize

	// MaxSerializedSize is the largest valid encoding.
	MaxSerializedSize = serializationMinSize + 10*1024*1024
)

var (
	// ErrInvalidAccountData is returned when account data is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")

	errNilAccount = errors.New("cannot store nil account")
)

// SerializeAccount serializes an account to binary format.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}

	dataLen := len(account.Data)
	buf := make([]byte, serializationMinSize+dataLen)

	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], uint64(account.Lamports))
	offset += 8

	binary.LittleEndian.PutUint32(buf[offset:], uint32(dataLen))
	offset += 4

	copy(buf[offset:], account.Data)
	offset += dataLen

	copy(buf[offset:], account.Owner[:])
	offset += 32

	if account.Executable {
		buf[offset] = 1
	}

	return buf, nil
}

// DeserializeAccount deserializes an account from binary format.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < serializationMinSize {
		return nil, fmt.Errorf("%w: data too short, need at least %d bytes, got %d",
			ErrInvalidAccountData, serializationMinSize, len(data))
	}

	offset := 0

	lamports := types.Lamports(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	dataLen := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	expectedSize := serializationMinSize + int(dataLen)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("%w: data length mismatch, expected %d bytes, got %d",
			ErrInvalidAccountData, expectedSize, len(data))
	}

	var accountData []byte
	if dataLen > 0 {
		accountData = make([]byte, dataLen)
		copy(accountData, data[offset:offset+int(dataLen)])
		offset += int(dataLen)
	}

	var owner types.Pubkey
	copy(owner[:], data[offset:offset+32])
	offset += 32

	switch data[offset] {
	case 0, 1:
	default:
		return nil, fmt.Errorf("%w: executable flag %d", ErrInvalidAccountData, data[offset])
	}

	return &types.Account{
		Lamports:   lamports,
		Data:       accountData,
		Owner:      owner,
		Executable: data[offset] == 1,
	}, nil
}
