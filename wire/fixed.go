package wire

import (
	"fmt"
	"math"
	"strings"
)

// Fixed is a signed 24.8 fixed-point number. The core protocol has no
// floating point type and uses these for coordinates.
type Fixed int32

func FixedInt(v int) Fixed {
	return Fixed(v << 8)
}

func FixedFloat(v float64) Fixed {
	i, frac := math.Modf(v)
	return Fixed((int(i) << 8) | int(math.Abs(frac)*math.Exp2(8)))
}

func (f Fixed) Int() int {
	return int(f >> 8)
}

func (f Fixed) Frac() int {
	return int(uint32(f) & 0xFF)
}

func (f Fixed) Float() float64 {
	return float64(f.Int()) + math.Abs(float64(f.Frac())*math.Exp2(-8))
}

func (f Fixed) String() string {
	var sb strings.Builder
	fmt.Fprint(&sb, f.Int())
	if frac := f.Frac(); frac != 0 {
		fmt.Fprintf(&sb, ".%v", frac)
	}
	return sb.String()
}
