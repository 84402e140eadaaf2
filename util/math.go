package util

import "math"

// AddInt64 溢出时返回边界值和false
func AddInt64(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		// 溢出
		return math.MaxInt64, false
	} else if b < 0 && a < math.MinInt64-b {
		// 溢出
		return math.MinInt64, false
	}
	// 未发生溢出
	return a + b, true
}

// MulInt64 溢出时返回边界值和false
func MulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		if (a > 0) == (b > 0) {
			return math.MaxInt64, false
		}
		return math.MinInt64, false
	}
	return c, true
}
