package models

import (
	"fmt"
	"time"
)

// Narrative is the synthesized one-per-cluster summary of a running story.
// Created on the first qualifying synthesis and updated in place afterwards.
type Narrative struct {
	ClusterID        int64     `json:"cluster_id"`
	MasterHeadline   string    `json:"master_headline"`
	ExecutiveSummary string    `json:"executive_summary"`
	ConsensusPoints  []string  `json:"consensus_points"`
	DivergencePoints []string  `json:"divergence_points"`
	SourceCount      int       `json:"source_count"`
	Sources          []string  `json:"sources"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Validate checks a narrative before persistence.
func (n *Narrative) Validate() error {
	if n.ClusterID <= 0 {
		return fmt.Errorf("narrative cluster id is required")
	}
	if n.MasterHeadline == "" {
		return fmt.Errorf("narrative master headline is required")
	}
	return nil
}

// IsFresh reports whether the narrative was updated within the given window.
func (n *Narrative) IsFresh(window time.Duration, now time.Time) bool {
	return now.Sub(n.LastUpdated) < window
}

// SynthesisResult is the structured output of the AI synthesis provider,
// validated at the parsing boundary before becoming a Narrative.
type SynthesisResult struct {
	MasterHeadline   string   `json:"master_headline"`
	ExecutiveSummary string   `json:"executive_summary"`
	ConsensusPoints  []string `json:"consensus_points"`
	DivergencePoints []string `json:"divergence_points"`
}

// Validate rejects schema-violating provider output.
func (r *SynthesisResult) Validate() error {
	if r.MasterHeadline == "" {
		return fmt.Errorf("synthesis result missing master headline")
	}
	if r.ExecutiveSummary == "" {
		return fmt.Errorf("synthesis result missing executive summary")
	}
	return nil
}
