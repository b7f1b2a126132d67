package faucet

import (
	"encoding/binary"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// StateSize is the encoded width of FaucetState:
//
//	tag (1) || administrator (32) || distribution_amount (8, LE)
const StateSize = 1 + types.PubkeyLength + 8

// AccountState is the lifecycle tag stored in the first byte of the record.
type AccountState uint8

const (
	Uninitialized AccountState = 0
	Initialized   AccountState = 1
)

func (s AccountState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// FaucetState is the persistent record held in the faucet account's data.
type FaucetState struct {
	State              AccountState
	Admin              types.Pubkey
	DistributionAmount uint64
}

// IsInitialized reports whether Initialize has written the record.
func (s *FaucetState) IsInitialized() bool {
	return s.State == Initialized
}

// Marshal encodes the state into StateSize bytes.
func (s *FaucetState) Marshal() []byte {
	data := make([]byte, StateSize)
	s.MarshalInto(data)
	return data
}

// MarshalInto writes the encoded state into the first StateSize bytes of
// dst. dst must be at least StateSize long.
func (s *FaucetState) MarshalInto(dst []byte) {
	dst[0] = byte(s.State)
	copy(dst[1:33], s.Admin[:])
	binary.LittleEndian.PutUint64(dst[33:41], s.DistributionAmount)
}

// Unmarshal decodes the state from data. Bytes beyond StateSize are ignored.
func (s *FaucetState) Unmarshal(data []byte) error {
	if len(data) < StateSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedState, StateSize, len(data))
	}
	tag := AccountState(data[0])
	if tag != Uninitialized && tag != Initialized {
		return fmt.Errorf("%w: unknown state tag %d", ErrMalformedState, data[0])
	}

	var admin types.Pubkey
	copy(admin[:], data[1:33])
	if tag == Initialized && admin.IsZero() {
		return fmt.Errorf("%w: initialized without administrator", ErrMalformedState)
	}

	s.State = tag
	s.Admin = admin
	s.DistributionAmount = binary.LittleEndian.Uint64(data[33:41])
	return nil
}

// DecodeState decodes a faucet record from account data.
func DecodeState(data []byte) (*FaucetState, error) {
	var s FaucetState
	if err := s.Unmarshal(data); err != nil {
		return nil, err
	}
	return &s, nil
}
