// Package rating implements the Elo update applied after a debate.
// Ratings are real-valued; rounding happens only at display time.
package rating

import "math"

// K-factor curve constants. The factor decays smoothly from ~45 for
// newcomers toward ~10 for highly rated players.
const (
	kScale    = 35.0115796
	kMidpoint = 1930.63327881
	kSlope    = 240.64853294
	kFloor    = 9.99989887
)

// KFactor returns the update weight for a player at the given rating
func KFactor(rating float64) float64 {
	return kScale/(1+math.Exp((rating-kMidpoint)/kSlope)) + kFloor
}

// Expected returns the expected score of a player against an opponent
func Expected(rating, opponent float64) float64 {
	return 1 / (1 + math.Pow(10, (opponent-rating)/400))
}

// Update returns the new ratings after winner beats loser. Each side
// moves by its own K-factor against its expected score, so the deltas
// are close but not exactly symmetric.
func Update(winner, loser float64) (newWinner, newLoser float64) {
	newWinner = winner + KFactor(winner)*(1-Expected(winner, loser))
	newLoser = loser + KFactor(loser)*(0-Expected(loser, winner))
	return newWinner, newLoser
}
