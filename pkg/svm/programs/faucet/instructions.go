package faucet

import (
	"encoding/binary"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Faucet instruction tags (first byte of instruction data)
const (
	InstructionInitialize      uint8 = 0
	InstructionRequestTokens   uint8 = 1
	InstructionReplenishTokens uint8 = 2
)

// Instruction is a decoded faucet instruction: one of *Initialize,
// *RequestTokens or *ReplenishTokens.
type Instruction interface {
	// Encode returns the wire form, tag byte included.
	Encode() []byte
	// Name returns the variant name used in logs and metrics.
	Name() string

	faucetInstruction()
}

// Initialize writes the faucet record.
type Initialize struct {
	DistributionAmount uint64
}

// RequestTokens pays the distribution amount to the requester.
type RequestTokens struct{}

// ReplenishTokens moves Amount lamports from the administrator to the faucet.
type ReplenishTokens struct {
	Amount uint64
}

func (*Initialize) faucetInstruction()      {}
func (*RequestTokens) faucetInstruction()   {}
func (*ReplenishTokens) faucetInstruction() {}

func (*Initialize) Name() string      { return "Initialize" }
func (*RequestTokens) Name() string   { return "RequestTokens" }
func (*ReplenishTokens) Name() string { return "ReplenishTokens" }

// Encode implements Instruction.
func (inst *Initialize) Encode() []byte {
	return encodeU64(InstructionInitialize, inst.DistributionAmount)
}

// Encode implements Instruction.
func (inst *RequestTokens) Encode() []byte {
	return []byte{InstructionRequestTokens}
}

// Encode implements Instruction.
func (inst *ReplenishTokens) Encode() []byte {
	return encodeU64(InstructionReplenishTokens, inst.Amount)
}

func encodeU64(tag uint8, v uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:9], v)
	return data
}

func decodeU64(name string, payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("%w: %s requires exactly 8 payload bytes, got %d", ErrInvalidInstructionData, name, len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

// Unpack decodes raw instruction data. Initialize and ReplenishTokens take
// exactly one u64 payload; bytes after the RequestTokens tag are ignored.
func Unpack(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrInvalidInstructionData)
	}

	tag, payload := data[0], data[1:]
	switch tag {
	case InstructionInitialize:
		amount, err := decodeU64("Initialize", payload)
		if err != nil {
			return nil, err
		}
		return &Initialize{DistributionAmount: amount}, nil

	case InstructionRequestTokens:
		return &RequestTokens{}, nil

	case InstructionReplenishTokens:
		amount, err := decodeU64("ReplenishTokens", payload)
		if err != nil {
			return nil, err
		}
		return &ReplenishTokens{Amount: amount}, nil

	default:
		return nil, fmt.Errorf("%w: unknown instruction tag %d", ErrInvalidInstructionData, tag)
	}
}

// NewInitializeInstruction builds Initialize with accounts
// [faucet (w), administrator (signer), rent sysvar].
func NewInitializeInstruction(programID, faucet, admin types.Pubkey, distributionAmount uint64) types.Instruction {
	inst := Initialize{DistributionAmount: distributionAmount}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(faucet, false),
			types.NewReadonlyAccountMeta(admin, true),
			types.NewReadonlyAccountMeta(types.SysvarRentID, false),
		},
		Data: inst.Encode(),
	}
}

// NewRequestTokensInstruction builds RequestTokens with accounts
// [faucet (w), requester (w), system program].
func NewRequestTokensInstruction(programID, faucet, requester types.Pubkey) types.Instruction {
	inst := RequestTokens{}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(faucet, false),
			types.NewAccountMeta(requester, false),
			types.NewReadonlyAccountMeta(types.SystemProgramID, false),
		},
		Data: inst.Encode(),
	}
}

// NewReplenishTokensInstruction builds ReplenishTokens with accounts
// [faucet (w), administrator (w, signer), system program].
func NewReplenishTokensInstruction(programID, faucet, admin types.Pubkey, amount uint64) types.Instruction {
	inst := ReplenishTokens{Amount: amount}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(faucet, false),
			types.NewAccountMeta(admin, true),
			types.NewReadonlyAccountMeta(types.SystemProgramID, false),
		},
		Data: inst.Encode(),
	}
}
