package isaac

// SeedOffset is added to every seed word to derive the encoding generator
// from the decoding one.
const SeedOffset = 50

// Pair holds the two generators of a session: Decode de-obfuscates inbound
// opcodes and Encode obfuscates outbound ones. Both are seeded once and never
// rekeyed.
type Pair struct {
	Encode *Random
	Decode *Random
}

// NewPair builds the server-side pair from the four seed words exchanged
// during login.
func NewPair(seed [4]uint32) *Pair {
	enc := offset(seed)
	return &Pair{
		Decode: New(seed[:]),
		Encode: New(enc[:]),
	}
}

// NewClientPair builds the mirror image of NewPair, the pair the remote client
// holds for the same seed. It is what a peer talking to the server uses.
func NewClientPair(seed [4]uint32) *Pair {
	dec := offset(seed)
	return &Pair{
		Encode: New(seed[:]),
		Decode: New(dec[:]),
	}
}

// Seed splits the client and server seeds into the four words used to key a
// Pair: client high, client low, server high, server low.
func Seed(clientSeed, serverSeed uint64) [4]uint32 {
	return [4]uint32{
		uint32(clientSeed >> 32),
		uint32(clientSeed),
		uint32(serverSeed >> 32),
		uint32(serverSeed),
	}
}

func offset(seed [4]uint32) [4]uint32 {
	for i := range seed {
		seed[i] += SeedOffset
	}
	return seed
}
