// Package memory keeps a searchable record of what the agent has already
// published, so it can avoid repeating itself.
package memory

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxRecentTitles = 20

// Index stores the agent's own posts and comments for similarity lookups.
type Index struct {
	index bleve.Index

	mu           sync.Mutex
	recentTitles []string
}

// NewIndex creates an own-content index. An empty path keeps the index
// purely in memory; a path persists it across restarts.
func NewIndex(path string) (*Index, error) {
	m := buildIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create content index: %w", err)
		}
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open content index: %w", err)
		}
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	kindField.Store = true
	kindField.Index = true
	docMapping.AddFieldMappingsAt("kind", kindField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Remember records one piece of published content.
func (m *Index) Remember(kind, title, content string) error {
	doc := map[string]interface{}{
		"kind":    kind,
		"title":   title,
		"content": content,
	}
	if err := m.index.Index(uuid.NewString(), doc); err != nil {
		return fmt.Errorf("failed to index own content: %w", err)
	}

	if kind == "post" && title != "" {
		m.mu.Lock()
		m.recentTitles = append(m.recentTitles, title)
		if len(m.recentTitles) > maxRecentTitles {
			m.recentTitles = m.recentTitles[len(m.recentTitles)-maxRecentTitles:]
		}
		m.mu.Unlock()
	}

	log.Debug().Str("kind", kind).Str("title", title).Msg("own content remembered")
	return nil
}

// SimilarPosts returns titles of earlier posts that look like near-duplicates
// of the given title. All terms must match, so ordinary topical overlap does
// not trip the guard.
func (m *Index) SimilarPosts(title string) ([]string, error) {
	titleQuery := bleve.NewMatchQuery(title)
	titleQuery.SetField("title")
	titleQuery.SetOperator(query.MatchQueryOperatorAnd)

	kindQuery := bleve.NewTermQuery("post")
	kindQuery.SetField("kind")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(titleQuery, kindQuery))
	req.Size = 3
	req.Fields = []string{"title"}

	res, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("content similarity search failed: %w", err)
	}

	var titles []string
	for _, hit := range res.Hits {
		if t, ok := hit.Fields["title"].(string); ok && t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

// RecentPostTitles returns up to limit of the latest post titles, newest last.
func (m *Index) RecentPostTitles(limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.recentTitles) {
		limit = len(m.recentTitles)
	}
	out := make([]string, limit)
	copy(out, m.recentTitles[len(m.recentTitles)-limit:])
	return out
}

// Close closes the underlying index.
func (m *Index) Close() error {
	return m.index.Close()
}
