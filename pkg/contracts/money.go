package contracts

import "fmt"

// Cents is a fixed-point monetary amount in hundredths of the account currency.
type Cents int64

// String formats c as dollars, e.g. "$1.05" or "-$0.20".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Dollars converts c to a float for display and metrics only.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}
