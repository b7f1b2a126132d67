package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Account meta flag bits in the message encoding.
const (
	metaFlagSigner   = 1 << 0
	metaFlagWritable = 1 << 1
)

// ErrInvalidMessage is returned when message bytes cannot be decoded.
var ErrInvalidMessage = errors.New("invalid instruction message")

// Message returns the bytes that signers sign:
//
//	program_id (32) || account_count (u16) || [pubkey (32) || flags (1)]... ||
//	data_len (u32) || data
func (ix *Instruction) Message() []byte {
	buf := make([]byte, 0, 32+2+len(ix.Accounts)*33+4+len(ix.Data))
	buf = append(buf, ix.ProgramID[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
	for _, meta := range ix.Accounts {
		var flags byte
		if meta.IsSigner {
			flags |= metaFlagSigner
		}
		if meta.IsWritable {
			flags |= metaFlagWritable
		}
		buf = append(buf, meta.Pubkey[:]...)
		buf = append(buf, flags)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
	buf = append(buf, ix.Data...)
	return buf
}

// ParseMessage decodes the output of Message.
func ParseMessage(msg []byte) (*Instruction, error) {
	if len(msg) < 32+2 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidMessage)
	}
	ix := &Instruction{}
	copy(ix.ProgramID[:], msg[0:32])
	count := int(binary.LittleEndian.Uint16(msg[32:34]))
	offset := 34
	if len(msg) < offset+count*33+4 {
		return nil, fmt.Errorf("%w: need %d account bytes", ErrInvalidMessage, count*33)
	}
	ix.Accounts = make([]AccountMeta, count)
	for i := 0; i < count; i++ {
		copy(ix.Accounts[i].Pubkey[:], msg[offset:offset+32])
		flags := msg[offset+32]
		ix.Accounts[i].IsSigner = flags&metaFlagSigner != 0
		ix.Accounts[i].IsWritable = flags&metaFlagWritable != 0
		offset += 33
	}
	dataLen := int(binary.LittleEndian.Uint32(msg[offset : offset+4]))
	offset += 4
	if len(msg) != offset+dataLen {
		return nil, fmt.Errorf("%w: data length %d, have %d", ErrInvalidMessage, dataLen, len(msg)-offset)
	}
	ix.Data = append([]byte(nil), msg[offset:]...)
	return ix, nil
}

// Signers returns the pubkeys of all signer metas, deduplicated, in order.
func (ix *Instruction) Signers() []Pubkey {
	seen := make(map[Pubkey]bool)
	var signers []Pubkey
	for _, meta := range ix.Accounts {
		if meta.IsSigner && !seen[meta.Pubkey] {
			seen[meta.Pubkey] = true
			signers = append(signers, meta.Pubkey)
		}
	}
	return signers
}

// SignedInstruction is an instruction plus the signatures of its signers.
// Signatures are keyed by signer pubkey and cover Instruction.Message().
type SignedInstruction struct {
	Instruction Instruction
	Signatures  map[Pubkey]Signature
}
