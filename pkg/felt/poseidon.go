package felt

import (
	"crypto/sha256"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Hades permutation parameters of the Starknet Poseidon instance: width 3,
// x^3 S-box, 4+4 full rounds around 83 partial rounds.
const (
	fullRounds    = 8
	partialRounds = 83
)

// roundConstants[r][i] is sha256("Hades" || 3r+i) reduced into the field.
var roundConstants [fullRounds + partialRounds][3]fp.Element

func init() {
	for r := range roundConstants {
		for i := range roundConstants[r] {
			sum := sha256.Sum256([]byte("Hades" + strconv.Itoa(3*r+i)))
			roundConstants[r][i].SetBytes(sum[:])
		}
	}
}

func hades(state *[3]fp.Element) {
	for r := range roundConstants {
		for i := range state {
			state[i].Add(&state[i], &roundConstants[r][i])
		}
		if r < fullRounds/2 || r >= fullRounds/2+partialRounds {
			for i := range state {
				cube(&state[i])
			}
		} else {
			cube(&state[2])
		}
		mix(state)
	}
}

func cube(x *fp.Element) {
	var sq fp.Element
	sq.Square(x)
	x.Mul(x, &sq)
}

// mix multiplies the state by the MDS matrix [[3,1,1],[1,-1,1],[1,1,-2]].
func mix(s *[3]fp.Element) {
	var t, a2, b2, c3 fp.Element
	t.Add(&s[0], &s[1])
	t.Add(&t, &s[2])
	a2.Double(&s[0])
	b2.Double(&s[1])
	c3.Double(&s[2])
	c3.Add(&c3, &s[2])

	s[0].Add(&t, &a2)
	s[1].Sub(&t, &b2)
	s[2].Sub(&t, &c3)
}

// Poseidon returns the Poseidon hash of a and b.
func Poseidon(a, b Felt) Felt {
	state := [3]fp.Element{fp.Element(a), fp.Element(b), fp.NewElement(2)}
	hades(&state)
	return Felt(state[0])
}

// PoseidonMany hashes a sequence with the Poseidon sponge. The input is
// padded with 1 and, when needed, a 0 to an even length. Typed-data
// (revision 1) struct and message hashes are built on it.
func PoseidonMany(elems ...Felt) Felt {
	padded := make([]Felt, 0, len(elems)+2)
	padded = append(padded, elems...)
	padded = append(padded, One)
	if len(padded)%2 != 0 {
		padded = append(padded, Zero)
	}

	var state [3]fp.Element
	for i := 0; i < len(padded); i += 2 {
		a, b := fp.Element(padded[i]), fp.Element(padded[i+1])
		state[0].Add(&state[0], &a)
		state[1].Add(&state[1], &b)
		hades(&state)
	}
	return Felt(state[0])
}
