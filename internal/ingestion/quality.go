package ingestion

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/storywire/storywire/internal/models"
)

// QualityConfig tunes the static filters and the scoring cutoff.
type QualityConfig struct {
	BlockedSources    []string
	JunkKeywords      []string
	ClickbaitPatterns []*regexp.Regexp
	TrustedSources    []string
	MinContentLength  int
	MinScore          int

	// Fuzzy-headline suppression within one batch.
	SimilarityThreshold float64
	MaxTitleLengthDelta int
}

// DefaultQualityConfig returns the production filter rules.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		BlockedSources: []string{
			"example-content-farm.com",
			"sponsored-wire.net",
		},
		JunkKeywords: []string{
			"you won't believe",
			"click here",
			"sponsored content",
			"horoscope",
			"giveaway",
			"promo code",
		},
		ClickbaitPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\d+ (things|reasons|ways|signs)`),
			regexp.MustCompile(`(?i)will (shock|blow) you`),
			regexp.MustCompile(`(?i)number \d+ will`),
		},
		TrustedSources: []string{
			"Reuters", "Associated Press", "BBC News", "Bloomberg", "The Guardian",
		},
		MinContentLength:    40,
		MinScore:            0,
		SimilarityThreshold: 0.8,
		MaxTitleLengthDelta: 20,
	}
}

// QualityGate applies static filtering, heuristic scoring and in-batch
// deduplication to a fetch batch.
type QualityGate struct {
	cfg     QualityConfig
	trusted map[string]bool
	logger  *slog.Logger
}

// NewQualityGate creates a gate with the given rules.
func NewQualityGate(cfg QualityConfig, logger *slog.Logger) *QualityGate {
	trusted := make(map[string]bool, len(cfg.TrustedSources))
	for _, s := range cfg.TrustedSources {
		trusted[strings.ToLower(s)] = true
	}

	return &QualityGate{cfg: cfg, trusted: trusted, logger: logger}
}

// Filter returns the batch's surviving articles: statically acceptable,
// scored at or above the cutoff, and not duplicating an already-accepted
// URL or headline. Ordering is by descending score, input order on ties.
func (g *QualityGate) Filter(batch []models.RawArticle) []models.RawArticle {
	type scored struct {
		article models.RawArticle
		score   int
	}

	candidates := make([]scored, 0, len(batch))
	for _, article := range batch {
		if reason := g.reject(article); reason != "" {
			g.logger.Debug("quality gate rejected article",
				"url", article.URL,
				"reason", reason,
			)
			continue
		}
		candidates = append(candidates, scored{article: article, score: g.Score(article)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	accepted := make([]models.RawArticle, 0, len(candidates))
	seenURLs := make(map[string]bool, len(candidates))
	seenTitles := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if c.score < g.cfg.MinScore {
			break // sorted descending: nothing below can pass
		}

		canonical := models.CanonicalURL(c.article.URL)
		if seenURLs[canonical] {
			continue
		}

		if g.fuzzyDuplicate(c.article.Title, seenTitles) {
			continue
		}

		seenURLs[canonical] = true
		seenTitles = append(seenTitles, c.article.Title)
		accepted = append(accepted, c.article)
	}

	return accepted
}

// reject applies the static filters, returning the rejection reason or "".
func (g *QualityGate) reject(article models.RawArticle) string {
	source := strings.ToLower(article.SourceName)
	lowerURL := strings.ToLower(article.URL)
	for _, blocked := range g.cfg.BlockedSources {
		b := strings.ToLower(blocked)
		if strings.Contains(source, b) || strings.Contains(lowerURL, b) {
			return "blocked_source"
		}
	}

	if len(article.Title)+len(article.Description) < g.cfg.MinContentLength {
		return "too_short"
	}

	content := strings.ToLower(article.Title + " " + article.Description)
	for _, junk := range g.cfg.JunkKeywords {
		if strings.Contains(content, junk) {
			return "junk_keyword"
		}
	}

	for _, pattern := range g.cfg.ClickbaitPatterns {
		if pattern.MatchString(article.Title) {
			return "clickbait"
		}
	}

	return ""
}

// Score computes the heuristic quality score for one article.
func (g *QualityGate) Score(article models.RawArticle) int {
	score := 0
	hasImage := strings.HasPrefix(article.ImageURL, "http")
	isTrusted := g.trusted[strings.ToLower(article.SourceName)]

	if hasImage {
		score += 2
	}
	if isTrusted {
		score += 3
	}

	content := strings.ToLower(article.Title + " " + article.Description)
	for _, junk := range g.cfg.JunkKeywords {
		if strings.Contains(content, junk) {
			score -= 10
			break
		}
	}

	if !hasImage && !isTrusted {
		score -= 5
	}

	if len(article.Title) >= 80 {
		score++
	}

	return score
}

// fuzzyDuplicate reports whether title near-matches any accepted title.
// Titles whose lengths differ by more than the configured delta are skipped
// before the bigram comparison.
func (g *QualityGate) fuzzyDuplicate(title string, accepted []string) bool {
	for _, prev := range accepted {
		delta := len(title) - len(prev)
		if delta < 0 {
			delta = -delta
		}
		if delta > g.cfg.MaxTitleLengthDelta {
			continue
		}
		if DiceSimilarity(title, prev) >= g.cfg.SimilarityThreshold {
			return true
		}
	}
	return false
}

// DiceSimilarity computes the Sørensen–Dice coefficient over character
// bigrams of the lowercased inputs. 1.0 means identical bigram sets.
func DiceSimilarity(a, b string) float64 {
	bigramsA := bigrams(strings.ToLower(a))
	bigramsB := bigrams(strings.ToLower(b))

	if len(bigramsA) == 0 && len(bigramsB) == 0 {
		return 1.0
	}
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0.0
	}

	intersection := 0
	for bg := range bigramsA {
		if bigramsB[bg] {
			intersection++
		}
	}

	return 2.0 * float64(intersection) / float64(len(bigramsA)+len(bigramsB))
}

func bigrams(s string) map[string]bool {
	runes := []rune(s)
	set := make(map[string]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = true
	}
	return set
}
