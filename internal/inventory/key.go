package inventory

import (
	"cmp"
	"fmt"
	"strconv"
)

// Denomination is an optional per-variant stock bucket. The zero value is the
// legacy (unset) bucket, which never matches a set denomination, including 0.
type Denomination struct {
	Value int
	Set   bool
}

func NoDenomination() Denomination { return Denomination{} }

func Denom(v int) Denomination { return Denomination{Value: v, Set: true} }

// ParseDenomination reads a query or form value; "" is the unset bucket.
func ParseDenomination(s string) (Denomination, error) {
	if s == "" {
		return Denomination{}, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Denomination{}, fmt.Errorf("denomination %q: %w", s, err)
	}
	return Denom(v), nil
}

// Compare orders unset before set, then by value.
func (d Denomination) Compare(o Denomination) int {
	if d.Set != o.Set {
		if !d.Set {
			return -1
		}
		return 1
	}
	if !d.Set {
		return 0
	}
	return cmp.Compare(d.Value, o.Value)
}

// Arg is the SQL argument for the nullable denomination column.
func (d Denomination) Arg() any {
	if !d.Set {
		return nil
	}
	return d.Value
}

// Ptr is the JSON form: nil when unset.
func (d Denomination) Ptr() *int {
	if !d.Set {
		return nil
	}
	v := d.Value
	return &v
}

func FromPtr(p *int) Denomination {
	if p == nil {
		return Denomination{}
	}
	return Denom(*p)
}

func (d Denomination) String() string {
	if !d.Set {
		return "legacy"
	}
	return "d" + strconv.Itoa(d.Value)
}

// Key identifies a stock bucket.
type Key struct {
	ProductID    string
	Denomination Denomination
}

func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.ProductID, o.ProductID); c != 0 {
		return c
	}
	return k.Denomination.Compare(o.Denomination)
}

func (k Key) String() string {
	return k.ProductID + "#" + k.Denomination.String()
}
