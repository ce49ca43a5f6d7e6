package slide

import "math/rand/v2"

// Sample returns up to n entries drawn uniformly without replacement.
// The input is not modified.
func Sample(entries []IndexEntry, n int, rng *rand.Rand) []IndexEntry {
	if n <= 0 || len(entries) == 0 {
		return []IndexEntry{}
	}
	shuffled := make([]IndexEntry, len(entries))
	copy(shuffled, entries)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
