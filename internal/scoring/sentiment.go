package scoring

import "strings"

// Small embedded polarity lexicon. The signal only needs magnitude (how
// emotionally charged a story reads), not direction, so both polarities
// count toward the same sum.
var positiveWords = map[string]struct{}{
	"growth": {}, "success": {}, "win": {}, "record": {}, "surge": {},
	"breakthrough": {}, "innovative": {}, "strong": {}, "gain": {}, "boost": {},
	"improve": {}, "improved": {}, "best": {}, "profit": {}, "rally": {},
}

var negativeWords = map[string]struct{}{
	"crash": {}, "failure": {}, "loss": {}, "breach": {}, "attack": {},
	"crisis": {}, "decline": {}, "lawsuit": {}, "outage": {}, "fraud": {},
	"layoff": {}, "layoffs": {}, "collapse": {}, "worst": {}, "drop": {},
}

// sentimentMagnitude counts lexicon hits in the text. The caller scales
// and clamps the raw count.
func sentimentMagnitude(text string) float64 {
	hits := 0
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if _, ok := positiveWords[tok]; ok {
			hits++
			continue
		}
		if _, ok := negativeWords[tok]; ok {
			hits++
		}
	}
	return float64(hits)
}
