package types

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRent_MinimumBalance(t *testing.T) {
	assert.Equal(t, Lamports(1_176_240), DefaultRent().MinimumBalance(41))
	assert.True(t, DefaultRent().IsExempt(1_176_240, 41))
	assert.False(t, DefaultRent().IsExempt(1_176_239, 41))

	huge := Rent{LamportsPerByteYear: math.MaxUint64, ExemptionThreshold: 2}
	assert.Equal(t, Lamports(math.MaxUint64), huge.MinimumBalance(41))
}

func TestRentFromAccountData(t *testing.T) {
	got, err := RentFromAccountData(DefaultRent().Marshal())
	require.NoError(t, err)
	assert.Equal(t, DefaultRent(), got)

	_, err = RentFromAccountData(make([]byte, RentSysvarSize-1))
	assert.ErrorIs(t, err, ErrInvalidRentData)
}

func TestRentFromAccountData_InvalidThreshold(t *testing.T) {
	for name, threshold := range map[string]float64{
		"nan":          math.NaN(),
		"negative":     -1,
		"infinity":     math.Inf(1),
		"neg infinity": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			data := DefaultRent().Marshal()
			binary.LittleEndian.PutUint64(data[8:16], math.Float64bits(threshold))
			_, err := RentFromAccountData(data)
			assert.ErrorIs(t, err, ErrInvalidRentData)
		})
	}
}
