package scoring

// Option applies a configuration option to the Weighted scorer.
type Option func(*Weighted)

// WithWeights sets the weights of the interest, energy and location components.
// Negative weights and an all-zero set are ignored. Weights are normalized to sum to one.
func WithWeights(interest, energy, location float64) Option {
	return func(w *Weighted) {
		if interest < 0 || energy < 0 || location < 0 {
			return
		}
		sum := interest + energy + location
		if sum <= 0 {
			return
		}
		w.interestWeight = interest / sum
		w.energyWeight = energy / sum
		w.locationWeight = location / sum
	}
}

// WithLocationScores sets the location score for equal cities, different cities
// and an unknown city on either side. Values outside [0,1] are ignored.
func WithLocationScores(same, different, unknown float64) Option {
	return func(w *Weighted) {
		for _, v := range []float64{same, different, unknown} {
			if v < 0 || v > 1 {
				return
			}
		}
		w.sameCity = same
		w.differentCity = different
		w.unknownCity = unknown
	}
}
