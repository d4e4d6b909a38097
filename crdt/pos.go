package crdt

import (
	"fmt"
	"math"
	"strings"
)

// Constants

// maxDigit is the exclusive upper bound of one position
// digit. The open interval (0, maxDigit) at the first
// level seeds all positions.
const maxDigit = uint64(math.MaxUint32)

// Structs

// PosElem is one level of a dense order key: a digit plus
// the replica that chose it. The replica part keeps keys
// from two authors distinct even when both pick the same
// digit into the same gap.
type PosElem struct {
	Digit   uint32 `msgpack:"d"`
	Replica uint8  `msgpack:"r"`
}

// Pos is a dense order key in the style of Logoot position
// identifiers: a path of digits compared level by level,
// with a shorter key sorting before any extension of
// itself. Between two arbitrary keys a fresh key strictly
// in between always exists, at worst one level deeper.
type Pos []PosElem

// Functions

// ComparePos orders two positions. It returns a negative
// number if a sorts before b, zero if both are identical
// and a positive number otherwise.
func ComparePos(a, b Pos) int {

	for i := 0; i < len(a) && i < len(b); i++ {

		if a[i].Digit != b[i].Digit {
			if a[i].Digit < b[i].Digit {
				return -1
			}
			return 1
		}

		if a[i].Replica != b[i].Replica {
			if a[i].Replica < b[i].Replica {
				return -1
			}
			return 1
		}
	}

	return len(a) - len(b)
}

// Between mints a fresh position strictly greater than lo
// and strictly less than hi, minted on behalf of the
// supplied replica. A nil lo means "before everything", a
// nil hi means "after everything". The walk descends one
// level whenever the gap at the current level is too tight,
// so generation never fails regardless of key density.
func Between(lo, hi Pos, replica uint8) Pos {

	out := make(Pos, 0, len(lo)+1)

	for i := 0; ; i++ {

		loOK := i < len(lo)
		hiOK := hi != nil && i < len(hi)

		loDigit := uint64(0)
		if loOK {
			loDigit = uint64(lo[i].Digit)
		}

		hiDigit := maxDigit
		if hiOK {
			hiDigit = uint64(hi[i].Digit)
		}

		// Room at this level: settle in the middle of the gap.
		if hiDigit > loDigit+1 {

			mid := loDigit + (hiDigit-loDigit)/2

			return append(out, PosElem{
				Digit:   uint32(mid),
				Replica: replica,
			})
		}

		// Identical elements on both bounds: keep both bounds
		// and descend.
		if loOK && hiOK && lo[i] == hi[i] {
			out = append(out, lo[i])
			continue
		}

		if loOK {
			// Stay directly above lo. From here on only lo
			// bounds from beneath, the upper bound moved out
			// of reach by at least one digit.
			out = append(out, lo[i])
			hi = nil
			continue
		}

		if hiOK && hiDigit == 0 {
			// lo is exhausted but hi continues through a
			// zero digit, so follow hi down. Generated keys
			// never end in a zero digit, hence hi must have
			// a deeper level to diverge under.
			out = append(out, hi[i])
			continue
		}

		// lo is exhausted and hi blocks at digit one: mark a
		// zero digit and descend into unbounded space.
		out = append(out, PosElem{Digit: 0, Replica: replica})
		hi = nil
	}
}

// String renders the position for logs and debugging.
func (p Pos) String() string {

	parts := make([]string, len(p))
	for i, el := range p {
		parts[i] = fmt.Sprintf("%d.%d", el.Digit, el.Replica)
	}

	return strings.Join(parts, "/")
}
