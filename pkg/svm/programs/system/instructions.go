package system

import (
	"encoding/binary"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// System Program instruction discriminators (first 4 bytes of instruction data)
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// ParseInstructionDiscriminator reads the leading u32 of instruction data.
func ParseInstructionDiscriminator(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes for discriminator, got %d", ErrInvalidInstructionData, len(data))
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}

// CreateAccountInstruction represents a CreateAccount instruction.
// Creates a new account with the specified lamports, space, and owner.
type CreateAccountInstruction struct {
	Lamports uint64       // Amount of lamports to transfer to the new account
	Space    uint64       // Amount of space in bytes to allocate
	Owner    types.Pubkey // Program that will own the new account
}

// Decode decodes a CreateAccount instruction from bytes.
func (inst *CreateAccountInstruction) Decode(data []byte) error {
	// Data layout: lamports (8 bytes) + space (8 bytes) + owner (32 bytes) = 48 bytes
	if len(data) < 48 {
		return fmt.Errorf("%w: CreateAccount requires 48 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	inst.Space = binary.LittleEndian.Uint64(data[8:16])
	copy(inst.Owner[:], data[16:48])
	return nil
}

// Encode encodes a CreateAccount instruction to bytes.
func (inst *CreateAccountInstruction) Encode() []byte {
	data := make([]byte, 4+48)
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	binary.LittleEndian.PutUint64(data[12:20], inst.Space)
	copy(data[20:52], inst.Owner[:])
	return data
}

// AssignInstruction represents an Assign instruction.
// Changes the owner of an account.
type AssignInstruction struct {
	Owner types.Pubkey // New owner program
}

// Decode decodes an Assign instruction from bytes.
func (inst *AssignInstruction) Decode(data []byte) error {
	if len(data) < 32 {
		return fmt.Errorf("%w: Assign requires 32 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	copy(inst.Owner[:], data[0:32])
	return nil
}

// Encode encodes an Assign instruction to bytes.
func (inst *AssignInstruction) Encode() []byte {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAssign)
	copy(data[4:36], inst.Owner[:])
	return data
}

// TransferInstruction represents a Transfer instruction.
// Transfers lamports between accounts.
type TransferInstruction struct {
	Lamports uint64 // Amount of lamports to transfer
}

// Decode decodes a Transfer instruction from bytes.
func (inst *TransferInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Transfer requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a Transfer instruction to bytes.
func (inst *TransferInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	return data
}

// AllocateInstruction represents an Allocate instruction.
// Allocates zeroed data for a system-owned account.
type AllocateInstruction struct {
	Space uint64 // Amount of space in bytes
}

// Decode decodes an Allocate instruction from bytes.
func (inst *AllocateInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Allocate requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Space = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes an Allocate instruction to bytes.
func (inst *AllocateInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:12], inst.Space)
	return data
}

// CreateAccount builds a CreateAccount instruction funded by from.
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) types.Instruction {
	inst := CreateAccountInstruction{Lamports: lamports, Space: space, Owner: owner}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true),
			types.NewAccountMeta(newAccount, true),
		},
		Data: inst.Encode(),
	}
}

// Assign builds an Assign instruction.
func Assign(account, owner types.Pubkey) types.Instruction {
	inst := AssignInstruction{Owner: owner}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, true)},
		Data:      inst.Encode(),
	}
}

// Transfer builds a Transfer instruction.
func Transfer(from, to types.Pubkey, lamports uint64) types.Instruction {
	inst := TransferInstruction{Lamports: lamports}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true),
			types.NewAccountMeta(to, false),
		},
		Data: inst.Encode(),
	}
}

// Allocate builds an Allocate instruction.
func Allocate(account types.Pubkey, space uint64) types.Instruction {
	inst := AllocateInstruction{Space: space}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, true)},
		Data:      inst.Encode(),
	}
}
