package jackpot

import (
	"hash/fnv"
	"math/rand/v2"
)

// drawStream separates the two PCG seed words derived from one hash.
const drawStream = 0x9e3779b97f4a7c15

// Draw returns a reproducible value in [0, 1) for a bet and jackpot.
//
// The concatenated identifiers are hashed with FNV-1a and the hash seeds a
// PCG generator whose first output is the draw. Equal inputs always give
// equal draws; the generator is not meant to resist a party who knows the ids.
func Draw(betID, jackpotID string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(betID + jackpotID))
	seed := h.Sum64()

	r := rand.New(rand.NewPCG(seed, seed^drawStream))
	return r.Float64()
}
