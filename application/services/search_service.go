package services

import (
	"context"
	"sort"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	domainServices "taskhub-backend/domain/services"
	"taskhub-backend/pkg/common"

	"go.uber.org/zap"
)

const (
	// defaultMinScore drops weakly matched documents
	defaultMinScore = 0.2

	// overfetchFactor bounds scoring cost: only this multiple of the
	// requested limit is fetched as candidates.
	overfetchFactor = 3
)

// SearchInput describes a full-text search over a collection
type SearchInput struct {
	Query   string   `validate:"required"`
	Fields  []string `validate:"required,min=1"`
	Where   []ports.Filter
	OrderBy []ports.SortClause
	Limit   int

	// MinScore drops documents scoring below it; zero means the default
	MinScore float64
}

// SearchOptions tunes matching and presentation
type SearchOptions struct {
	CaseSensitive    bool
	FuzzyMatch       bool
	HighlightMatches bool
}

// DefaultSearchOptions returns the standard options: case-insensitive
// fuzzy matching with highlighting.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		FuzzyMatch:       true,
		HighlightMatches: true,
	}
}

// SearchHit is one scored result. Highlights map field names to merged
// match spans; they are presentation metadata and never affect the
// score.
type SearchHit struct {
	Document   *document.Document
	Score      float64
	Highlights map[string][]domainServices.HighlightSpan
}

// SearchResult is a scored, truncated result page
type SearchResult struct {
	Results    []*SearchHit
	Pagination common.Page
}

// SearchService tokenizes, fuzzy-matches, scores and highlights on top
// of the query engine.
type SearchService struct {
	query  *QueryService
	logger *zap.Logger
}

// NewSearchService creates a search engine
func NewSearchService(query *QueryService, logger *zap.Logger) *SearchService {
	return &SearchService{
		query:  query,
		logger: logger,
	}
}

// FullTextSearch scores candidate documents against the query. A field
// scores matchedQueryTokens/totalQueryTokens; a document scores the
// maximum across its configured fields. Candidates are over-fetched at
// three times the limit, scored, sorted by score descending (stable on
// ties) and truncated; if fewer candidates qualify the result is simply
// shorter, no re-query happens.
func (s *SearchService) FullTextSearch(ctx context.Context, collection string, input SearchInput, opts SearchOptions) (*SearchResult, error) {
	minScore := input.MinScore
	if minScore == 0 {
		minScore = defaultMinScore
	}

	fetchLimit := 0
	if input.Limit > 0 {
		fetchLimit = overfetchFactor * input.Limit
	}
	page, err := s.query.Query(ctx, collection, ports.QuerySpec{
		Filters: input.Where,
		Sort:    input.OrderBy,
		Limit:   fetchLimit,
	})
	if err != nil {
		return nil, err
	}

	analyzer := domainServices.NewTextAnalyzer(opts.CaseSensitive)
	queryTokens := analyzer.Tokenize(input.Query)
	if len(queryTokens) == 0 {
		return &SearchResult{Pagination: common.NewPage(0, input.Limit, "")}, nil
	}

	var hits []*SearchHit
	for _, doc := range page.Results {
		hit := s.scoreDocument(analyzer, doc, queryTokens, input.Fields, opts)
		if hit.Score < minScore {
			continue
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if input.Limit > 0 && len(hits) > input.Limit {
		hits = hits[:input.Limit]
	}

	var lastID string
	if len(hits) > 0 {
		lastID = hits[len(hits)-1].Document.ID
	}

	s.logger.Debug("Search completed",
		zap.String("collection", collection),
		zap.Int("candidates", len(page.Results)),
		zap.Int("results", len(hits)),
	)

	return &SearchResult{
		Results:    hits,
		Pagination: common.NewPage(len(hits), input.Limit, lastID),
	}, nil
}

// scoreDocument computes the document's best field score and, when
// enabled, highlight spans for every matched field.
func (s *SearchService) scoreDocument(analyzer *domainServices.TextAnalyzer, doc *document.Document, queryTokens []domainServices.Token, fields []string, opts SearchOptions) *SearchHit {
	hit := &SearchHit{Document: doc}
	for _, field := range fields {
		v := doc.Field(field)
		if v.Kind() != document.KindString {
			continue
		}
		text := v.AsString()

		score := fieldScore(analyzer, text, queryTokens, opts.FuzzyMatch)
		if score > hit.Score {
			hit.Score = score
		}
		if opts.HighlightMatches && score > 0 {
			spans := analyzer.HighlightSpans(text, queryTokens, opts.FuzzyMatch)
			if len(spans) > 0 {
				if hit.Highlights == nil {
					hit.Highlights = make(map[string][]domainServices.HighlightSpan)
				}
				hit.Highlights[field] = spans
			}
		}
	}
	return hit
}

// fieldScore is the fraction of query tokens matched by at least one
// token of the field text.
func fieldScore(analyzer *domainServices.TextAnalyzer, text string, queryTokens []domainServices.Token, fuzzy bool) float64 {
	docTokens := analyzer.Tokenize(text)
	if len(docTokens) == 0 {
		return 0
	}

	matched := 0
	for _, qt := range queryTokens {
		for _, dt := range docTokens {
			if analyzer.Matches(qt.Text, dt.Text, fuzzy) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
