// Package vector holds the similarity math shared by the embedding scorer and MMR.
package vector

import "math"

// Cosine returns the cosine similarity of a and b. ok is false when either
// vector is empty, all-zero, or the lengths differ; callers treat that as
// neutral.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	sim = dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0, false
	}
	// rounding can push |sim| slightly past 1
	return math.Max(-1, math.Min(1, sim)), true
}

// Dot returns the dot product of a and b. ok is false when either vector is
// empty or the lengths differ.
func Dot(a, b []float32) (dot float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(dot) || math.IsInf(dot, 0) {
		return 0, false
	}
	return dot, true
}

// Euclidean returns the L2 distance between a and b. ok is false when either
// vector is empty or the lengths differ.
func Euclidean(a, b []float32) (dist float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	dist = math.Sqrt(sum)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, false
	}
	return dist, true
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the distinct members of a and b.
// ok is false when either set is empty.
func Jaccard(a, b []string) (sim float64, ok bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	sa := make(map[string]struct{}, len(a))
	for _, s := range a {
		sa[s] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, s := range b {
		sb[s] = struct{}{}
	}
	inter := 0
	for s := range sa {
		if _, hit := sb[s]; hit {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union), true
}
