package engine

// ScoreConfidence combines evidence quality, submitter reputation and
// historical consistency into a [0,1] confidence. Identical inputs always
// yield identical output.
//
// Submitters with fewer than 3 past contributions get a neutral consistency
// score of 0.5 rather than being judged on a tiny sample.
func ScoreConfidence(evidenceScore, reputation float64, pastContributions int, verificationRate float64) float64 {
	reputationScore := reputation / 100.0
	if reputationScore > 1.0 {
		reputationScore = 1.0
	}

	consistencyScore := 0.5
	if pastContributions >= 3 {
		consistencyScore = verificationRate
		if consistencyScore > 1.0 {
			consistencyScore = 1.0
		}
	}

	confidence := (evidenceScore + reputationScore + consistencyScore) / 3.0
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
