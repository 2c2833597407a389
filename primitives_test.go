package mil1553

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_fieldRoundTrip(t *testing.T) {
	type pos struct{ width, lsb uint8 }
	positions := []pos{
		{5, 11}, {1, 10}, {5, 5}, {5, 0}, // command word fields
		{1, 10}, {1, 9}, {1, 8}, {1, 4}, {1, 3}, {1, 2}, {1, 1}, {1, 0}, // status word fields
	}

	rapid.Check(t, func(t *rapid.T) {
		p := positions[rapid.IntRange(0, len(positions)-1).Draw(t, "pos")]
		word := rawWord(rapid.Uint16().Draw(t, "word"))
		maxValue := uint16(1)<<p.width - 1
		value := rapid.Uint16Range(0, maxValue).Draw(t, "value")

		assert.Equal(t, value, readField(setField(word, p.width, p.lsb, value), p.width, p.lsb))
		assert.Equal(t, word, setField(word, p.width, p.lsb, readField(word, p.width, p.lsb)))
	})
}

func Test_alignFieldMatchesSetFieldOnZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.Uint8Range(1, 16).Draw(t, "width")
		lsb := rapid.Uint8Range(0, 16-width).Draw(t, "lsb")
		value := rapid.Uint16Range(0, uint16(1)<<width-1).Draw(t, "value")

		assert.Equal(t, setField(0, width, lsb, value), alignField(width, lsb, value))
	})
}

func TestNewBitField(t *testing.T) {
	assert.Panics(t, func() { NewBitField(0, 0) })
	assert.Panics(t, func() { NewBitField(9, 0) })
	assert.Panics(t, func() { NewBitField(5, 32) })

	b := NewBitField(5, 17)
	assert.Equal(t, uint8(5), b.Width())
	assert.Equal(t, uint8(17), b.Value())
}

func TestNewComplexBitField(t *testing.T) {
	assert.Panics(t, func() { NewComplexBitField(8, 0) })
	assert.Panics(t, func() { NewComplexBitField(17, 0) })
	assert.Panics(t, func() { NewComplexBitField(10, 1<<10) })

	c := NewComplexBitField(16, 0xBEEF)
	assert.Equal(t, uint8(16), c.Width())
	assert.Equal(t, uint16(0xBEEF), c.Value())
}
