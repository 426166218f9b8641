package analysis

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/storywire/storywire/internal/models"
)

// MockAnalyzer is a deterministic Analyzer for tests and development runs
// without provider credentials. Embeddings are derived from the text hash so
// identical texts always produce identical vectors.
type MockAnalyzer struct {
	mu sync.Mutex

	// FixedEmbeddings overrides the derived vector for specific texts.
	FixedEmbeddings map[string][]float64

	// FailEmbedding makes Embed and EmbedBatch fail for matching texts.
	FailEmbedding map[string]bool

	// SynthesisErr, when set, is returned by Synthesize.
	SynthesisErr error

	analyzeCalls   int
	synthesisCalls int
}

// NewMockAnalyzer creates an empty mock.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{
		FixedEmbeddings: make(map[string][]float64),
		FailEmbedding:   make(map[string]bool),
	}
}

// Analyze returns a deterministic result derived from the raw article.
func (m *MockAnalyzer) Analyze(ctx context.Context, raw models.RawArticle) (models.AnalysisResult, error) {
	m.mu.Lock()
	m.analyzeCalls++
	m.mu.Unlock()

	return models.AnalysisResult{
		Headline:     strings.TrimSpace(raw.Title),
		Summary:      strings.TrimSpace(raw.Description),
		Category:     "general",
		ClusterTopic: models.DeriveTopic(raw.Title),
		TrustScore:   6,
	}, nil
}

// Embed returns a unit vector derived from the text hash.
func (m *MockAnalyzer) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailEmbedding[text] {
		return nil, fmt.Errorf("mock embedding failure for %q", text)
	}
	if fixed, ok := m.FixedEmbeddings[text]; ok {
		return fixed, nil
	}
	return deriveVector(text), nil
}

// EmbedBatch embeds each text, leaving nil slots for configured failures.
func (m *MockAnalyzer) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	for i, text := range texts {
		vector, err := m.Embed(ctx, text)
		if err != nil {
			continue
		}
		results[i] = vector
	}
	return results, nil
}

// Synthesize returns a canned summary built from the input articles.
func (m *MockAnalyzer) Synthesize(ctx context.Context, articles []models.Article) (models.SynthesisResult, error) {
	m.mu.Lock()
	m.synthesisCalls++
	err := m.SynthesisErr
	m.mu.Unlock()

	if err != nil {
		return models.SynthesisResult{}, err
	}
	if len(articles) == 0 {
		return models.SynthesisResult{}, fmt.Errorf("no articles to synthesize")
	}

	return models.SynthesisResult{
		MasterHeadline:   articles[0].Headline,
		ExecutiveSummary: fmt.Sprintf("Synthesis of %d articles.", len(articles)),
		ConsensusPoints:  []string{"mock consensus point"},
		DivergencePoints: []string{},
	}, nil
}

// AnalyzeCalls returns how many times Analyze ran. Test helper.
func (m *MockAnalyzer) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCalls
}

// SynthesisCalls returns how many times Synthesize ran. Test helper.
func (m *MockAnalyzer) SynthesisCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.synthesisCalls
}

// deriveVector maps a text to a stable 8-dimension unit vector.
func deriveVector(text string) []float64 {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))

	vector := make([]float64, 8)
	var norm float64
	for i := range vector {
		vector[i] = float64(sum[i]) + 1
		norm += vector[i] * vector[i]
	}

	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] /= norm
	}
	return vector
}
