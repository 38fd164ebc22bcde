package identifier

import "math"

// Score weights. They sum to 1.
const (
	weightEntropy    = 0.3
	weightRarity     = 0.3
	weightLength     = 0.2
	weightRepetition = 0.2

	// fullLength is the π component length that earns the whole length bonus.
	fullLength = 20

	// maxBigrams caps the repetition denominator.
	maxBigrams = 100
)

// UniquenessScore rates a π component in [0, 1]. It combines the Shannon
// entropy of the digit histogram (normalized by log2(10)), the rarity of the
// starting offset 1/(1+log10(offset+1)), a length bonus min(len/20, 1) and the
// ratio of distinct 2-grams to the possible count. It is a heuristic and says
// nothing about actual collision probability.
func UniquenessScore(component string, offset int) float64 {
	if component == "" {
		return 0
	}
	score := weightEntropy*entropy(component) +
		weightRarity*rarity(offset) +
		weightLength*math.Min(float64(len(component))/fullLength, 1) +
		weightRepetition*repetition(component)
	return math.Max(0, math.Min(1, score))
}

func entropy(s string) float64 {
	var hist [256]int
	for i := 0; i < len(s); i++ {
		hist[s[i]]++
	}
	n := float64(len(s))
	h := 0.0
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return math.Min(h/math.Log2(10), 1)
}

func rarity(offset int) float64 {
	if offset < 0 {
		offset = 0
	}
	return 1 / (1 + math.Log10(float64(offset)+1))
}

func repetition(s string) float64 {
	if len(s) < 2 {
		return 1
	}
	seen := make(map[string]struct{}, len(s))
	for i := 0; i+2 <= len(s); i++ {
		seen[s[i:i+2]] = struct{}{}
	}
	possible := len(s) - 1
	if possible > maxBigrams {
		possible = maxBigrams
	}
	return math.Min(float64(len(seen))/float64(possible), 1)
}
