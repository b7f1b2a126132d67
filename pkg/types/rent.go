package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Rent sysvar defaults (mainnet values).
const (
	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50

	// AccountStorageOverhead is charged on top of every account's data length.
	AccountStorageOverhead = 128

	// RentSysvarSize is lamports_per_byte_year (8) + exemption_threshold (8) + burn_percent (1).
	RentSysvarSize = 17
)

// ErrInvalidRentData is returned when the rent sysvar cannot be decoded.
var ErrInvalidRentData = errors.New("invalid rent sysvar data")

// Rent holds the parameters of the rent-exemption predicate.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// Validate rejects an exemption threshold that is not a finite,
// non-negative number.
func (r Rent) Validate() error {
	t := r.ExemptionThreshold
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: exemption threshold %v", ErrInvalidRentData, t)
	}
	return nil
}

// MinimumBalance returns the lamports an account holding dataLen bytes
// needs to be rent exempt. Results beyond the lamport range saturate.
func (r Rent) MinimumBalance(dataLen uint64) Lamports {
	bytes := float64(AccountStorageOverhead+dataLen) * float64(r.LamportsPerByteYear)
	minimum := bytes * r.ExemptionThreshold
	if math.IsNaN(minimum) || minimum >= math.MaxUint64 {
		return Lamports(math.MaxUint64)
	}
	return Lamports(minimum)
}

// IsExempt reports whether balance covers the rent-exempt minimum for dataLen.
func (r Rent) IsExempt(balance Lamports, dataLen uint64) bool {
	return balance >= r.MinimumBalance(dataLen)
}

// Marshal encodes the rent sysvar account data.
func (r Rent) Marshal() []byte {
	buf := make([]byte, RentSysvarSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.ExemptionThreshold))
	buf[16] = r.BurnPercent
	return buf
}

// RentFromAccountData decodes the rent sysvar account data.
func RentFromAccountData(data []byte) (Rent, error) {
	if len(data) < RentSysvarSize {
		return Rent{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidRentData, RentSysvarSize, len(data))
	}
	r := Rent{
		LamportsPerByteYear: binary.LittleEndian.Uint64(data[0:8]),
		ExemptionThreshold:  math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		BurnPercent:         data[16],
	}
	if err := r.Validate(); err != nil {
		return Rent{}, err
	}
	return r, nil
}
