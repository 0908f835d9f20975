package math

import (
	"errors"
	"fmt"
)

const (
	MININT32 = int32(-1 << 31)
	MAXINT32 = int32(1<<31 - 1)
)

// ErrNumericOverflow is returned when a result does not fit in an int32.
var ErrNumericOverflow = errors.New("numeric overflow")

func AddInt32Overflow(a int32, b ...int32) (int32, error) {
	for _, v := range b {
		if (v > 0 && a > MAXINT32-v) || (v < 0 && a < MININT32-v) {
			return 0, fmt.Errorf("int32 add %d + %d: %w", a, v, ErrNumericOverflow)
		}
		a += v
	}

	return a, nil
}

func SubInt32Overflow(a int32, b ...int32) (int32, error) {
	for _, v := range b {
		if (v < 0 && a > MAXINT32+v) || (v > 0 && a < MININT32+v) {
			return 0, fmt.Errorf("int32 sub %d - %d: %w", a, v, ErrNumericOverflow)
		}
		a -= v
	}

	return a, nil
}

var pow10 = [...]int64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

// DigitWeight returns d*10^exp as an int32. Zero digits never overflow,
// whatever their position.
func DigitWeight(d byte, exp int) (int32, error) {
	if d == 0 {
		return 0, nil
	}
	if exp < 0 || exp >= len(pow10) {
		return 0, fmt.Errorf("digit %d at 10^%d: %w", d, exp, ErrNumericOverflow)
	}
	v := int64(d) * pow10[exp]
	if v > int64(MAXINT32) {
		return 0, fmt.Errorf("digit %d at 10^%d: %w", d, exp, ErrNumericOverflow)
	}
	return int32(v), nil
}
