package faucet

import (
	"errors"
	"fmt"
)

// Faucet program errors
var (
	// ErrInvalidInstructionData indicates the instruction bytes could not be decoded.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrIncorrectProgramId indicates the faucet account is not owned by this program.
	ErrIncorrectProgramId = errors.New("incorrect program id")

	// ErrMissingRequiredSignature indicates the administrator did not sign.
	ErrMissingRequiredSignature = errors.New("missing required signature")

	// ErrAccountNotRentExempt indicates the faucet balance is below the rent-exempt minimum.
	ErrAccountNotRentExempt = errors.New("account not rent exempt")

	// ErrInvalidAccountData indicates wrong account count, a bad rent account or an
	// administrator mismatch.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrInsufficientFunds indicates the source balance is below the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMalformedState indicates the faucet record could not be decoded.
	ErrMalformedState = errors.New("malformed faucet state")

	// ErrAccountAlreadyInitialized indicates Initialize ran on an initialized faucet.
	ErrAccountAlreadyInitialized = errors.New("account already initialized")

	// ErrUninitializedAccount indicates the faucet has not been initialized.
	ErrUninitializedAccount = errors.New("uninitialized account")

	// ErrArithmeticOverflow indicates a balance credit would overflow.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// ProgramError is the stable numeric code reported for a failed instruction.
type ProgramError uint32

// Program error codes
const (
	CodeSuccess ProgramError = iota
	CodeInvalidInstructionData
	CodeIncorrectProgramId
	CodeMissingRequiredSignature
	CodeAccountNotRentExempt
	CodeInvalidAccountData
	CodeInsufficientFunds
	CodeMalformedState
	CodeAccountAlreadyInitialized
	CodeUninitializedAccount
	CodeArithmeticOverflow

	CodeUnknown ProgramError = 0xFFFF
)

var errorCodes = []struct {
	err  error
	code ProgramError
}{
	{ErrInvalidInstructionData, CodeInvalidInstructionData},
	{ErrIncorrectProgramId, CodeIncorrectProgramId},
	{ErrMissingRequiredSignature, CodeMissingRequiredSignature},
	{ErrAccountNotRentExempt, CodeAccountNotRentExempt},
	{ErrInvalidAccountData, CodeInvalidAccountData},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrMalformedState, CodeMalformedState},
	{ErrAccountAlreadyInitialized, CodeAccountAlreadyInitialized},
	{ErrUninitializedAccount, CodeUninitializedAccount},
	{ErrArithmeticOverflow, CodeArithmeticOverflow},
}

// ErrorCode maps an error returned by the program to its numeric code.
func ErrorCode(err error) ProgramError {
	if err == nil {
		return CodeSuccess
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}

// String returns the code's name.
func (c ProgramError) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeInvalidInstructionData:
		return "InvalidInstructionData"
	case CodeIncorrectProgramId:
		return "IncorrectProgramId"
	case CodeMissingRequiredSignature:
		return "MissingRequiredSignature"
	case CodeAccountNotRentExempt:
		return "AccountNotRentExempt"
	case CodeInvalidAccountData:
		return "InvalidAccountData"
	case CodeInsufficientFunds:
		return "InsufficientFunds"
	case CodeMalformedState:
		return "MalformedState"
	case CodeAccountAlreadyInitialized:
		return "AccountAlreadyInitialized"
	case CodeUninitializedAccount:
		return "UninitializedAccount"
	case CodeArithmeticOverflow:
		return "ArithmeticOverflow"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(c))
	}
}
