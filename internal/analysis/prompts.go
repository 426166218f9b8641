package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/storywire/storywire/internal/models"
)

const analysisSystemPrompt = `You are a news analysis engine. You receive one news article
and return ONLY valid JSON with this exact shape:
{
  "headline": "cleaned headline, max 120 characters",
  "summary": "neutral 2-3 sentence summary",
  "category": "one of: general, politics, business, technology, science, health, sports",
  "cluster_topic": "3-5 lowercase hyphenated words naming the underlying story",
  "trust_score": 0-10 integer assessing source reliability and factual tone
}
Do not add commentary or fields.`

const synthesisSystemPrompt = `You are a news synthesis engine. You receive several articles
covering the same developing story and return ONLY valid JSON with this exact shape:
{
  "master_headline": "one headline covering the story as a whole",
  "executive_summary": "4-6 sentence summary of the story's current state",
  "consensus_points": ["facts all sources agree on"],
  "divergence_points": ["claims where sources disagree or report differently"]
}
Do not add commentary or fields.`

func buildAnalysisPrompt(raw models.RawArticle) string {
	return fmt.Sprintf(`ARTICLE
Title: %s
Source: %s
Published: %s
Description:
%s`,
		raw.Title,
		raw.SourceName,
		raw.PublishedAt.Format(time.RFC3339),
		truncate(raw.Description, 2000),
	)
}

func buildSynthesisPrompt(articles []models.Article) string {
	var b strings.Builder
	b.WriteString("STORY CLUSTER ARTICLES (newest first):\n")

	for i, article := range articles {
		fmt.Fprintf(&b, `
--- Article %d ---
Headline: %s
Source: %s
Published: %s
Summary: %s
`,
			i+1,
			article.Headline,
			article.SourceName,
			article.PublishedAt.Format(time.RFC3339),
			truncate(article.Summary, 800),
		)
	}

	return b.String()
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
