package sane

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeConstraint(t *testing.T) {
	tests := []struct {
		name string
		desc RawDescriptor
		want Constraint
	}{
		{
			name: "none",
			desc: RawDescriptor{ConstraintType: ConstraintNone},
			want: NoConstraint{},
		},
		{
			name: "range",
			desc: RawDescriptor{ConstraintType: ConstraintRange, Range: &Range{Min: 50, Max: 1200, Quant: 1}},
			want: RangeConstraint{Min: 50, Max: 1200, Quant: 1},
		},
		{
			name: "range_unquantized",
			desc: RawDescriptor{ConstraintType: ConstraintRange, Range: &Range{Min: -100, Max: 100}},
			want: RangeConstraint{Min: -100, Max: 100},
		},
		{
			name: "word_list_strips_length",
			desc: RawDescriptor{ConstraintType: ConstraintWordList, WordList: []int32{4, 75, 150, 300, 600}},
			want: WordListConstraint{75, 150, 300, 600},
		},
		{
			name: "word_list_empty",
			desc: RawDescriptor{ConstraintType: ConstraintWordList, WordList: []int32{0}},
			want: WordListConstraint{},
		},
		{
			name: "word_list_ignores_trailing_words",
			desc: RawDescriptor{ConstraintType: ConstraintWordList, WordList: []int32{2, 100, 200, 999}},
			want: WordListConstraint{100, 200},
		},
		{
			name: "string_list_excludes_sentinel",
			desc: RawDescriptor{ConstraintType: ConstraintStringList, StringList: [][]byte{[]byte("Lineart"), []byte("Gray"), []byte("Color"), nil}},
			want: StringListConstraint{"Lineart", "Gray", "Color"},
		},
		{
			name: "string_list_empty",
			desc: RawDescriptor{ConstraintType: ConstraintStringList, StringList: [][]byte{nil}},
			want: StringListConstraint{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeConstraint(&tt.desc))
		})
	}
}

func TestDecodeConstraint_CopiesMemory(t *testing.T) {
	words := []int32{2, 10, 20}
	strs := [][]byte{[]byte("Flatbed"), nil}
	wl := decodeConstraint(&RawDescriptor{ConstraintType: ConstraintWordList, WordList: words})
	sl := decodeConstraint(&RawDescriptor{ConstraintType: ConstraintStringList, StringList: strs})

	words[1] = 0
	copy(strs[0], "XXXXXXX")

	assert.Equal(t, WordListConstraint{10, 20}, wl)
	assert.Equal(t, StringListConstraint{"Flatbed"}, sl)
}

func TestEncodeValue_Layout(t *testing.T) {
	assert.Equal(t, word(1), encodeValue(Option{Type: TypeBool}, Bool(true)))
	assert.Equal(t, word(0), encodeValue(Option{Type: TypeBool}, Bool(false)))
	assert.Equal(t, word(-7), encodeValue(Option{Type: TypeInt}, Int(-7)))
	assert.Equal(t, word(1<<16), encodeValue(Option{Type: TypeFixed}, FixedFromFloat(1)))
	assert.Equal(t, []byte("Gray\x00\x00\x00\x00"), encodeValue(Option{Type: TypeString, Size: 8}, String("Gray")))
	// Strings longer than Size are still NUL-terminated; the backend rejects them.
	assert.Equal(t, []byte("Color\x00"), encodeValue(Option{Type: TypeString, Size: 4}, String("Color")))
	assert.Nil(t, encodeValue(Option{Type: TypeButton}, Button{}))
}

func TestDecodeValue_StringWithoutNUL(t *testing.T) {
	v := decodeValue(Option{Type: TypeString, Size: 4}, []byte("Gray"))
	assert.Equal(t, String("Gray"), v)
}

func TestFixed(t *testing.T) {
	assert.Equal(t, Fixed(0x10000), FixedFromFloat(1.0))
	assert.Equal(t, Fixed(-0x8000), FixedFromFloat(-0.5))
	assert.InDelta(t, 215.9, FixedFromFloat(215.9).Float64(), 1.0/(1<<FixedBits))
	assert.Equal(t, "2.5", FixedFromFloat(2.5).String())
	assert.Equal(t, "215.9", FixedFromFloat(215.9).String())
	assert.Equal(t, "0.1", FixedFromFloat(0.1).String())
	assert.Equal(t, "-12.25", FixedFromFloat(-12.25).String())
	assert.Equal(t, "0", FixedFromFloat(-0.00001).String())
}

func TestCapabilityString(t *testing.T) {
	c := CapSoftSelect | CapSoftDetect | CapAutomatic
	assert.Equal(t, "soft-select|soft-detect|automatic", c.String())
	assert.True(t, c.Has(CapSoftSelect|CapAutomatic))
	assert.False(t, c.Has(CapInactive))

	opt := Option{Cap: CapInactive | CapAdvanced}
	assert.False(t, opt.IsActive())
	assert.Equal(t, "", Capability(0).String())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "NoDocs", StatusNoDocs.String())
	assert.Equal(t, "Status(99)", Status(99).String())
	assert.Equal(t, "Fixed", TypeFixed.String())
	assert.Equal(t, "dpi", UnitDpi.String())
	assert.Equal(t, "rgb", FrameRGB.String())
	assert.Equal(t, "Scanning", StateScanning.String())
}
