// models/amount.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount is an unsigned 256-bit token amount in the asset's smallest unit.
// It is a value type: every arithmetic helper returns a new Amount.
// Stored as numeric(78,0) on postgres and as decimal text elsewhere.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromUint256 copies x.
func AmountFromUint256(x *uint256.Int) Amount {
	var a Amount
	a.v.Set(x)
	return a
}

// Uint256 returns a copy of the underlying integer.
func (a Amount) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&a.v)
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }

// Add returns a+b and whether the sum overflowed 256 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	_, overflow := out.v.AddOverflow(&a.v, &b.v)
	return out, overflow
}

// Sub returns a-b and whether it underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	var out Amount
	_, underflow := out.v.SubOverflow(&a.v, &b.v)
	return out, underflow
}

// MulDiv returns floor(a*num/den) computed with a 512-bit intermediate, and
// whether the result does not fit in 256 bits. den must be non-zero.
func (a Amount) MulDiv(num, den uint64) (Amount, bool) {
	var out Amount
	_, overflow := out.v.MulDivOverflow(&a.v, uint256.NewInt(num), uint256.NewInt(den))
	return out, overflow
}

func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a decimal string so 1e18-scale values
// survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts a decimal string or a plain JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.v.Dec(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.scanString(v)
	case []byte:
		return a.scanString(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("negative amount %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(s string) error {
	// postgres may hand numeric(78,0) back as "123" or, after arithmetic, "123.0"
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(trimZeroFraction(s))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func trimZeroFraction(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			continue
		}
		for _, c := range s[i+1:] {
			if c != '0' {
				return s
			}
		}
		return s[:i]
	}
	return s
}

// GormDataType implements schema.GormDataTypeInterface.
func (Amount) GormDataType() string { return "amount" }

// GormDBDataType picks the column type per dialect.
func (Amount) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "numeric(78,0)"
	default:
		return "text"
	}
}
