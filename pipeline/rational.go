package astipipeline

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// NoPTS represents an undefined timestamp
const NoPTS int64 = math.MinInt64

// TimeBaseQ is the internal time base, timestamps in options are expressed in it
var TimeBaseQ = Rational{Num: 1, Den: 1000000}

// Rational represents a rational number
type Rational struct {
	Num int
	Den int
}

// NewRational creates a new rational
func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// IsZero returns whether the rational is unset
func (r Rational) IsZero() bool { return r.Num == 0 }

// Float64 returns the float value of the rational
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns the inverse of the rational
func (r Rational) Invert() Rational { return Rational{Num: r.Den, Den: r.Num} }

func (r Rational) String() string { return strconv.Itoa(r.Num) + "/" + strconv.Itoa(r.Den) }

func (r Rational) rat() *big.Rat {
	if r.Den == 0 {
		return new(big.Rat)
	}
	return big.NewRat(int64(r.Num), int64(r.Den))
}

// Compare returns -1, 0 or 1 depending on whether r is smaller, equal or greater than o
func (r Rational) Compare(o Rational) int { return r.rat().Cmp(o.rat()) }

// RescaleQ rescales a from time base bq to time base cq, rounding to the nearest and
// away from zero on ties
func RescaleQ(a int64, bq, cq Rational) int64 {
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(int64(bq.Num)*int64(cq.Den)))
	c := big.NewInt(int64(cq.Num) * int64(bq.Den))
	if c.Sign() == 0 {
		return NoPTS
	}
	q, r := new(big.Int).QuoRem(n, c, new(big.Int))
	if new(big.Int).Mul(new(big.Int).Abs(r), big.NewInt(2)).Cmp(new(big.Int).Abs(c)) >= 0 {
		if n.Sign()*c.Sign() >= 0 {
			q.Add(q, big.NewInt(1))
		} else {
			q.Sub(q, big.NewInt(1))
		}
	}
	if !q.IsInt64() {
		return NoPTS
	}
	return q.Int64()
}

// rescaleTS is RescaleQ preserving undefined timestamps
func rescaleTS(a int64, bq, cq Rational) int64 {
	if a == NoPTS {
		return NoPTS
	}
	return RescaleQ(a, bq, cq)
}

// durationFromTimeBaseQ converts a TimeBaseQ timestamp, undefined timestamps being converted to 0
func durationFromTimeBaseQ(v int64) time.Duration {
	if v == NoPTS || v < 0 {
		return 0
	}
	return time.Duration(v) * time.Microsecond
}

// CompareTS compares timestamps expressed in different time bases
func CompareTS(a int64, aq Rational, b int64, bq Rational) int {
	return new(big.Rat).Mul(big.NewRat(a, 1), aq.rat()).Cmp(new(big.Rat).Mul(big.NewRat(b, 1), bq.rat()))
}

// Reduce returns the closest rational whose numerator and denominator don't exceed max
func Reduce(num, den, max int64) (r Rational) {
	neg := (num < 0) != (den < 0)
	if num < 0 {
		num = -num
	}
	if den < 0 {
		den = -den
	}
	if g := gcd(num, den); g > 0 {
		num, den = num/g, den/g
	}

	// Continued fractions
	a0n, a0d, a1n, a1d := int64(0), int64(1), int64(1), int64(0)
	if num <= max && den <= max {
		a1n, a1d = num, den
		den = 0
	}
	for den != 0 {
		x := num / den
		nextDen := num - den*x
		a2n, a2d := x*a1n+a0n, x*a1d+a0d
		if a2n > max || a2d > max {
			if a1n != 0 {
				x = (max - a0n) / a1n
			}
			if a1d != 0 {
				if y := (max - a0d) / a1d; y < x {
					x = y
				}
			}
			if den*(2*x*a1d+a0d) > num*a1d {
				a1n, a1d = x*a1n+a0n, x*a1d+a0d
			}
			break
		}
		a0n, a0d, a1n, a1d = a1n, a1d, a2n, a2d
		num, den = den, nextDen
	}
	if neg {
		a1n = -a1n
	}
	return Rational{Num: int(a1n), Den: int(a1d)}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// NearestRational returns the index of the rational of rs nearest to r
func NearestRational(r Rational, rs []Rational) (idx int) {
	var best *big.Rat
	for i, v := range rs {
		d := new(big.Rat).Sub(r.rat(), v.rat())
		d.Abs(d)
		if best == nil || d.Cmp(best) < 0 {
			best, idx = d, i
		}
	}
	return
}

// ParseRatio parses "num/den", "num:den" or a decimal number
func ParseRatio(s string, max int64) (r Rational, err error) {
	if i := strings.IndexAny(s, "/:"); i > 0 {
		var num, den int64
		if num, err = strconv.ParseInt(strings.TrimSpace(s[:i]), 10, 64); err != nil {
			return
		}
		if den, err = strconv.ParseInt(strings.TrimSpace(s[i+1:]), 10, 64); err != nil {
			return
		}
		if den == 0 {
			err = errors.New("astipipeline: zero denominator")
			return
		}
		return Reduce(num, den, max), nil
	}
	v, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		err = fmt.Errorf("astipipeline: invalid ratio %q", s)
		return
	}
	if !v.Num().IsInt64() || !v.Denom().IsInt64() {
		err = fmt.Errorf("astipipeline: ratio %q out of range", s)
		return
	}
	return Reduce(v.Num().Int64(), v.Denom().Int64(), max), nil
}

var videoRateAbbreviations = map[string]Rational{
	"film":      {Num: 24, Den: 1},
	"ntsc":      {Num: 30000, Den: 1001},
	"ntsc-film": {Num: 24000, Den: 1001},
	"pal":       {Num: 25, Den: 1},
	"qntsc":     {Num: 30000, Den: 1001},
	"qpal":      {Num: 25, Den: 1},
	"sntsc":     {Num: 30000, Den: 1001},
	"spal":      {Num: 25, Den: 1},
}

// ParseVideoRate parses a frame rate such as "25", "29.97", "30000/1001" or "ntsc"
func ParseVideoRate(s string) (r Rational, err error) {
	if v, ok := videoRateAbbreviations[s]; ok {
		return v, nil
	}
	if r, err = ParseRatio(s, 1001000); err != nil {
		return
	}
	if r.Num <= 0 || r.Den <= 0 {
		err = fmt.Errorf("astipipeline: invalid video rate %q", s)
		return
	}
	return
}

var videoSizeAbbreviations = map[string][2]int{
	"16cif":   {1408, 1152},
	"2k":      {2048, 1080},
	"4cif":    {704, 576},
	"4k":      {4096, 2160},
	"cga":     {320, 200},
	"cif":     {352, 288},
	"ega":     {640, 350},
	"film":    {352, 240},
	"hd1080":  {1920, 1080},
	"hd480":   {852, 480},
	"hd720":   {1280, 720},
	"ntsc":    {720, 480},
	"pal":     {720, 576},
	"qcif":    {176, 144},
	"qhd":     {960, 540},
	"qntsc":   {352, 240},
	"qpal":    {352, 288},
	"qvga":    {320, 240},
	"sntsc":   {640, 480},
	"spal":    {768, 576},
	"sqcif":   {128, 96},
	"svga":    {800, 600},
	"sxga":    {1280, 1024},
	"uhd2160": {3840, 2160},
	"uhd4320": {7680, 4320},
	"uxga":    {1600, 1200},
	"vga":     {640, 480},
	"wuxga":   {1920, 1200},
	"wxga":    {1366, 768},
	"xga":     {1024, 768},
}

// ParseVideoSize parses a frame size such as "640x480" or "hd720"
func ParseVideoSize(s string) (width, height int, err error) {
	if v, ok := videoSizeAbbreviations[s]; ok {
		return v[0], v[1], nil
	}
	i := strings.IndexByte(s, 'x')
	if i <= 0 {
		err = fmt.Errorf("astipipeline: invalid video size %q", s)
		return
	}
	if width, err = strconv.Atoi(s[:i]); err != nil {
		return
	}
	if height, err = strconv.Atoi(s[i+1:]); err != nil {
		return
	}
	if width <= 0 || height <= 0 {
		err = fmt.Errorf("astipipeline: invalid video size %q", s)
		return
	}
	return
}
