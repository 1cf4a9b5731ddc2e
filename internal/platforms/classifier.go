package platforms

import (
	"strings"

	"github.com/citelens/citelens/internal/models"
)

// Classifier assigns sentiment to a citation's context. Sentiment arrives
// pre-computed from this collaborator; the engine never inspects answer text
// itself.
type Classifier interface {
	Classify(content string) models.Sentiment
}

// KeywordClassifier is the default classifier: a keyword-count heuristic.
// Deployments with a hosted classifier swap in their own implementation.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default keyword-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify scores content by positive and negative keyword hits.
func (k *KeywordClassifier) Classify(content string) models.Sentiment {
	content = strings.ToLower(content)

	positiveWords := []string{"best", "great", "excellent", "recommended", "top", "leading", "trusted", "reliable", "popular", "award"}
	negativeWords := []string{"avoid", "worst", "bad", "poor", "overpriced", "complaint", "scam", "unreliable", "outdated", "problem"}

	positiveCount := 0
	negativeCount := 0

	for _, word := range positiveWords {
		if strings.Contains(content, word) {
			positiveCount++
		}
	}

	for _, word := range negativeWords {
		if strings.Contains(content, word) {
			negativeCount++
		}
	}

	if positiveCount > negativeCount {
		return models.SentimentPositive
	} else if negativeCount > positiveCount {
		return models.SentimentNegative
	}

	return models.SentimentNeutral
}
