// Package isaac implements the ISAAC pseudorandom number generator used to
// obfuscate packet opcodes, and the per-session pair of generators built
// during login.
package isaac

const (
	goldenRatio = 0x9e3779b9
	logSize     = 8
	size        = 1 << logSize
	mask        = (size - 1) << 2
)

// Random is a single ISAAC keystream. It is not safe for concurrent use; each
// generator belongs to exactly one I/O path.
type Random struct {
	count   int
	results [size]uint32
	memory  [size]uint32
	a, b, c uint32
}

// New creates a generator from the given seed words. At most 256 words are
// used; missing words are treated as zero.
func New(seed []uint32) *Random {
	r := &Random{}
	copy(r.results[:], seed)
	r.init()
	return r
}

// NextInt returns the next 32-bit value of the keystream.
func (r *Random) NextInt() uint32 {
	if r.count == 0 {
		r.isaac()
		r.count = size
	}
	r.count--
	return r.results[r.count]
}

func (r *Random) isaac() {
	r.c++
	r.b += r.c

	j := size / 2
	for i := 0; i < size; {
		r.step(i, j, r.a<<13)
		i, j = i+1, (j+1)%size
		r.step(i, j, r.a>>6)
		i, j = i+1, (j+1)%size
		r.step(i, j, r.a<<2)
		i, j = i+1, (j+1)%size
		r.step(i, j, r.a>>16)
		i, j = i+1, (j+1)%size
	}
}

func (r *Random) step(i, j int, mixed uint32) {
	x := r.memory[i]
	r.a ^= mixed
	r.a += r.memory[j]
	y := r.memory[(x&mask)>>2] + r.a + r.b
	r.memory[i] = y
	r.b = r.memory[((y>>logSize)&mask)>>2] + x
	r.results[i] = r.b
}

func (r *Random) init() {
	var s [8]uint32
	for i := range s {
		s[i] = goldenRatio
	}
	for i := 0; i < 4; i++ {
		mix(&s)
	}

	for i := 0; i < size; i += 8 {
		for k := 0; k < 8; k++ {
			s[k] += r.results[i+k]
		}
		mix(&s)
		copy(r.memory[i:i+8], s[:])
	}
	for i := 0; i < size; i += 8 {
		for k := 0; k < 8; k++ {
			s[k] += r.memory[i+k]
		}
		mix(&s)
		copy(r.memory[i:i+8], s[:])
	}

	r.isaac()
	r.count = size
}

func mix(s *[8]uint32) {
	s[0] ^= s[1] << 11
	s[3] += s[0]
	s[1] += s[2]
	s[1] ^= s[2] >> 2
	s[4] += s[1]
	s[2] += s[3]
	s[2] ^= s[3] << 8
	s[5] += s[2]
	s[3] += s[4]
	s[3] ^= s[4] >> 16
	s[6] += s[3]
	s[4] += s[5]
	s[4] ^= s[5] << 10
	s[7] += s[4]
	s[5] += s[6]
	s[5] ^= s[6] >> 4
	s[0] += s[5]
	s[6] += s[7]
	s[6] ^= s[7] << 8
	s[1] += s[6]
	s[7] += s[0]
	s[7] ^= s[0] >> 9
	s[2] += s[7]
	s[0] += s[1]
}
