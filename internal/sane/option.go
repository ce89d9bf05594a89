package sane

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// wordSize is the width of SANE_Word, SANE_Int, SANE_Bool and SANE_Fixed.
const wordSize = 4

// Option is a snapshot of an option descriptor taken by Handle.Options.
// It stays meaningful until a set operation reports InfoReloadOptions or
// the owning Handle is closed.
type Option struct {
	// Index is the option number, starting at 1. Option 0 holds the option count.
	Index      int32
	Name       string
	Title      string
	Desc       string
	Type       ValueType
	Unit       Unit
	Size       int32
	Cap        Capability
	Constraint Constraint
}

// IsActive reports whether the option currently has a meaningful value.
func (o Option) IsActive() bool { return !o.Cap.Has(CapInactive) }

// IsSettable reports whether the option can be set through software.
func (o Option) IsSettable() bool { return o.Cap.Has(CapSoftSelect) }

// IsDetectable reports whether the option can be read through software.
func (o Option) IsDetectable() bool { return o.Cap.Has(CapSoftDetect) }

// IsAutomatic reports whether SetOptionAuto is supported.
func (o Option) IsAutomatic() bool { return o.Cap.Has(CapAutomatic) }

// HasValue reports whether the option carries a value at all.
func (o Option) HasValue() bool { return o.Type != TypeButton && o.Type != TypeGroup }

// Constraint restricts the values an option accepts. It is one of
// NoConstraint, RangeConstraint, WordListConstraint or StringListConstraint.
type Constraint interface {
	constraint()
}

// NoConstraint means any value of the option's type is accepted.
type NoConstraint struct{}

// RangeConstraint is an inclusive range. Quant is the step size; 0 means any value.
type RangeConstraint struct {
	Min   int32
	Max   int32
	Quant int32
}

// WordListConstraint enumerates the accepted Int or Fixed values.
type WordListConstraint []int32

// StringListConstraint enumerates the accepted String values.
type StringListConstraint []string

func (NoConstraint) constraint()         {}
func (RangeConstraint) constraint()      {}
func (WordListConstraint) constraint()   {}
func (StringListConstraint) constraint() {}

// Value is an option value. It is one of Bool, Int, Fixed, String, Button or Group.
type Value interface {
	Type() ValueType
}

type (
	Bool   bool
	Int    int32
	String string
	// Fixed is a signed 16.16 fixed-point number.
	Fixed int32
	// Button triggers a button option when set. It carries no value.
	Button struct{}
	// Group marks a group header. It has no value and cannot be set.
	Group struct{}
)

func (Bool) Type() ValueType   { return TypeBool }
func (Int) Type() ValueType    { return TypeInt }
func (Fixed) Type() ValueType  { return TypeFixed }
func (String) Type() ValueType { return TypeString }
func (Button) Type() ValueType { return TypeButton }
func (Group) Type() ValueType  { return TypeGroup }

// FixedBits is the number of fractional bits in a Fixed value.
const FixedBits = 16

// FixedFromFloat converts f to the nearest Fixed value.
func FixedFromFloat(f float64) Fixed {
	return Fixed(math.Round(f * (1 << FixedBits)))
}

// Float64 converts the fixed-point value to a float.
func (f Fixed) Float64() float64 {
	return float64(f) / (1 << FixedBits)
}

// String prints the value rounded to four decimals, the precision 16
// fractional bits can carry.
func (f Fixed) String() string {
	v := math.Round(f.Float64()*1e4) / 1e4
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeDescriptor copies a descriptor out of ABI memory.
func decodeDescriptor(idx int32, d *RawDescriptor) Option {
	return Option{
		Index:      idx,
		Name:       string(d.Name),
		Title:      string(d.Title),
		Desc:       string(d.Desc),
		Type:       d.Type,
		Unit:       d.Unit,
		Size:       d.Size,
		Cap:        Capability(uint32(d.Cap)),
		Constraint: decodeConstraint(d),
	}
}

func decodeConstraint(d *RawDescriptor) Constraint {
	switch d.ConstraintType {
	case ConstraintRange:
		if d.Range == nil {
			return NoConstraint{}
		}
		return RangeConstraint{Min: d.Range.Min, Max: d.Range.Max, Quant: d.Range.Quant}
	case ConstraintWordList:
		if len(d.WordList) == 0 {
			return WordListConstraint{}
		}
		n := int(d.WordList[0])
		if n < 0 {
			n = 0
		}
		n = min(n, len(d.WordList)-1)
		words := make(WordListConstraint, n)
		copy(words, d.WordList[1:1+n])
		return words
	case ConstraintStringList:
		list := StringListConstraint{}
		for _, s := range d.StringList {
			if s == nil {
				break
			}
			list = append(list, string(s))
		}
		return list
	default:
		return NoConstraint{}
	}
}

// encodeValue lays v out in the buffer format the backend expects for opt.
// A nil result stands for a null value pointer.
func encodeValue(opt Option, v Value) []byte {
	if v.Type() != opt.Type {
		panic(fmt.Sprintf("sane: %s value for %s option %q", v.Type(), opt.Type, opt.Name))
	}
	switch v := v.(type) {
	case Bool:
		var w uint32
		if v {
			w = 1
		}
		return binary.NativeEndian.AppendUint32(make([]byte, 0, wordSize), w)
	case Int:
		return binary.NativeEndian.AppendUint32(make([]byte, 0, wordSize), uint32(v))
	case Fixed:
		return binary.NativeEndian.AppendUint32(make([]byte, 0, wordSize), uint32(v))
	case String:
		// The backend may read up to Size bytes, so pad to at least that much.
		buf := make([]byte, max(int(opt.Size), len(v)+1))
		copy(buf, v)
		return buf
	case Button:
		return nil
	default:
		panic(fmt.Sprintf("sane: option %q of type %s cannot be set", opt.Name, opt.Type))
	}
}

// decodeValue interprets a value buffer filled by the backend for opt.
func decodeValue(opt Option, buf []byte) Value {
	switch opt.Type {
	case TypeBool:
		return Bool(binary.NativeEndian.Uint32(buf) != 0)
	case TypeInt:
		return Int(int32(binary.NativeEndian.Uint32(buf)))
	case TypeFixed:
		return Fixed(int32(binary.NativeEndian.Uint32(buf)))
	case TypeString:
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		return String(buf)
	default:
		panic(fmt.Sprintf("sane: option %q of type %s has no value", opt.Name, opt.Type))
	}
}
