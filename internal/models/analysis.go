package models

import (
	"regexp"
	"strings"
)

// AnalysisResult is the structured output of per-article AI analysis.
// Degraded marks the basic fallback used when the provider is unavailable
// or returned an unparsable response.
type AnalysisResult struct {
	Headline     string `json:"headline"`
	Summary      string `json:"summary"`
	Category     string `json:"category"`
	ClusterTopic string `json:"cluster_topic"`
	TrustScore   int    `json:"trust_score"`
	Degraded     bool   `json:"-"`
}

// neutralTrustScore is assigned when no AI assessment is available.
const neutralTrustScore = 5

var topicStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "with": true, "as": true,
	"at": true, "by": true, "is": true, "after": true, "over": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// BasicAnalysis derives a minimal result from feed metadata alone. Used when
// the analysis provider is unavailable or its response cannot be parsed.
func BasicAnalysis(raw RawArticle) AnalysisResult {
	return AnalysisResult{
		Headline:     strings.TrimSpace(raw.Title),
		Summary:      strings.TrimSpace(raw.Description),
		Category:     "general",
		ClusterTopic: DeriveTopic(raw.Title),
		TrustScore:   neutralTrustScore,
		Degraded:     true,
	}
}

// DeriveTopic builds a coarse cluster topic from a headline: the first few
// significant lowercased words, joined by hyphens.
func DeriveTopic(title string) string {
	words := wordPattern.FindAllString(strings.ToLower(title), -1)

	significant := make([]string, 0, 4)
	for _, w := range words {
		if topicStopWords[w] || len(w) < 3 {
			continue
		}
		significant = append(significant, w)
		if len(significant) == 4 {
			break
		}
	}

	if len(significant) == 0 {
		return "untopiced"
	}
	return strings.Join(significant, "-")
}
