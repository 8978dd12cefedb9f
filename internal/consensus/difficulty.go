package consensus

import "math/big"

// Algorithm selects a difficulty retargeting function.
type Algorithm string

const (
	AlgorithmLWMA3      Algorithm = "lwma3"
	AlgorithmAggressive Algorithm = "aggressive"
	AlgorithmDogecoin   Algorithm = "dogecoin"
)

// lwma3Window is N, the number of trailing (timestamp, difficulty) samples
// LWMA-3 weighs.
const lwma3Window = 90

// Sample is one ancestor block's timestamp and difficulty, oldest first.
type Sample struct {
	Timestamp  uint64
	Difficulty uint64
}

// NextDifficulty computes the difficulty for the block that follows
// samples (oldest first, most recent last), targeting blockTimeMS spacing
// under the named algorithm. Returns 1 if samples is empty.
func NextDifficulty(algo Algorithm, samples []Sample, blockTimeMS uint64) uint64 {
	if len(samples) == 0 {
		return 1
	}
	switch algo {
	case AlgorithmAggressive:
		return nextDifficultyAggressive(samples, blockTimeMS)
	case AlgorithmDogecoin:
		return nextDifficultyDogecoin(samples, blockTimeMS)
	default:
		return nextDifficultyLWMA3(samples, blockTimeMS)
	}
}

// nextDifficultyLWMA3 is a weighted harmonic mean of recent difficulties,
// each weighted by its position in the window, adjusted so the overall
// window's actual solve time converges on target spacing. Solve times are
// linearly weighted the same way, each clamped to [target/4, 6x target]
// to bound a single slow/fast block's influence.
func nextDifficultyLWMA3(samples []Sample, blockTimeMS uint64) uint64 {
	n := len(samples)
	if n > lwma3Window {
		samples = samples[n-lwma3Window:]
		n = lwma3Window
	}
	if n < 2 {
		return samples[n-1].Difficulty
	}

	target := new(big.Int).SetUint64(blockTimeMS)
	minSolve := new(big.Int).Div(target, big.NewInt(4))
	maxSolve := new(big.Int).Mul(target, big.NewInt(6))

	weightedTime := big.NewInt(0)
	invDiffSum := new(big.Rat) // sum of weight/difficulty
	totalWeight := big.NewInt(0)

	for i := 1; i < n; i++ {
		solve := int64(samples[i].Timestamp) - int64(samples[i-1].Timestamp)
		solveBig := big.NewInt(solve)
		if solveBig.Cmp(minSolve) < 0 {
			solveBig = minSolve
		}
		if solveBig.Cmp(maxSolve) > 0 {
			solveBig = maxSolve
		}

		weight := big.NewInt(int64(i)) // linear weighting, recent solves count more
		weightedTime.Add(weightedTime, new(big.Int).Mul(solveBig, weight))
		invDiffSum.Add(invDiffSum, new(big.Rat).SetFrac(weight, new(big.Int).SetUint64(max(samples[i].Difficulty, 1))))
		totalWeight.Add(totalWeight, weight)
	}

	if weightedTime.Sign() <= 0 {
		weightedTime = big.NewInt(1)
	}

	// The weighted harmonic mean of difficulties is totalWeight/invDiffSum.
	num := new(big.Int).Mul(new(big.Int).Mul(totalWeight, target), totalWeight)
	den := new(big.Rat).Mul(invDiffSum, new(big.Rat).SetInt(weightedTime))
	q := new(big.Rat).Quo(new(big.Rat).SetInt(num), den)
	result := new(big.Int).Quo(q.Num(), q.Denom())

	return clampDifficulty(result)
}

// nextDifficultyAggressive reacts fully to only the most recent solve
// time, clamped to +-2x per step.
func nextDifficultyAggressive(samples []Sample, blockTimeMS uint64) uint64 {
	n := len(samples)
	if n < 2 {
		return samples[n-1].Difficulty
	}
	last := samples[n-1]
	prev := samples[n-2]
	solve := int64(last.Timestamp) - int64(prev.Timestamp)
	if solve <= 0 {
		solve = 1
	}

	cur := new(big.Int).SetUint64(last.Difficulty)
	target := new(big.Int).SetInt64(int64(blockTimeMS))
	actual := new(big.Int).SetInt64(solve)

	minActual := new(big.Int).Div(target, big.NewInt(2))
	maxActual := new(big.Int).Mul(target, big.NewInt(2))
	if actual.Cmp(minActual) < 0 {
		actual = minActual
	}
	if actual.Cmp(maxActual) > 0 {
		actual = maxActual
	}

	result := new(big.Int).Mul(cur, target)
	result.Div(result, actual)
	return clampDifficulty(result)
}

// nextDifficultyDogecoin retargets every block off a short fixed window
// (the last min(samples, 4) solves), clamped to +-4x.
func nextDifficultyDogecoin(samples []Sample, blockTimeMS uint64) uint64 {
	window := 4
	n := len(samples)
	if n < window+1 {
		window = n - 1
	}
	if window < 1 {
		return samples[n-1].Difficulty
	}

	start := samples[n-window-1]
	end := samples[n-1]
	actual := int64(end.Timestamp) - int64(start.Timestamp)
	expected := int64(blockTimeMS) * int64(window)
	if actual <= 0 {
		actual = 1
	}

	cur := new(big.Int).SetUint64(end.Difficulty)
	exp := new(big.Int).SetInt64(expected)
	act := new(big.Int).SetInt64(actual)

	minAct := new(big.Int).Div(exp, big.NewInt(4))
	maxAct := new(big.Int).Mul(exp, big.NewInt(4))
	if act.Cmp(minAct) < 0 {
		act = minAct
	}
	if act.Cmp(maxAct) > 0 {
		act = maxAct
	}

	result := new(big.Int).Mul(cur, exp)
	result.Div(result, act)
	return clampDifficulty(result)
}

// clampDifficulty floors a retarget result at 1 and guards against
// non-representable (negative or overflowing) big.Int results.
func clampDifficulty(result *big.Int) uint64 {
	if result.Sign() <= 0 || !result.IsUint64() {
		return 1
	}
	d := result.Uint64()
	if d < 1 {
		return 1
	}
	return d
}
