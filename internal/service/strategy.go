package service

import "time"

const (
	StrategyEnhancedSearch  = "enhanced_search"
	StrategyModerateContext = "moderate_context"
	StrategyHistoryOnly     = "history_only"
)

// Strategy is one attempt at answering a chat turn. TopK is the number of
// retrieved chunks put into the prompt; zero skips retrieval.
type Strategy struct {
	Name           string
	TopK           int
	IncludeHistory bool
	Timeout        time.Duration
}

// DefaultStrategies are tried in order until one succeeds.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyEnhancedSearch, TopK: 8, IncludeHistory: true, Timeout: 45 * time.Second},
		{Name: StrategyModerateContext, TopK: 4, IncludeHistory: true, Timeout: 25 * time.Second},
		{Name: StrategyHistoryOnly, TopK: 0, IncludeHistory: true, Timeout: 25 * time.Second},
	}
}
