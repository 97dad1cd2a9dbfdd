// Package logarchive keeps every backend log line seen by the client in a
// local full-text index. The backend itself only returns its most recent
// lines.
package logarchive

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/zeebo/blake3"

	log "github.com/sirupsen/logrus"
)

// Field names in the index.
const (
	fieldLine   = "line"
	fieldPhase  = "phase"
	fieldSeenAt = "seen_at"
	fieldError  = "error"
)

const DefaultLimit = 20

// Hit is one archived line matching a search.
type Hit struct {
	ID     string
	Line   string
	Phase  string
	SeenAt time.Time
	Score  float64
}

// Archive is a bleve index of log lines keyed by the blake3 hash of the line.
type Archive struct {
	mu  sync.Mutex
	idx bleve.Index
	now func() time.Time
}

// Open opens the index at path, creating it if it does not exist.
func Open(path string) (*Archive, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create log archive directory: %w", mkErr)
		}
		log.Debugf("Creating log archive at %s", path)
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log archive %s: %w", path, err)
	}
	return &Archive{idx: idx, now: time.Now}, nil
}

func buildMapping() mapping.IndexMapping {
	line := bleve.NewTextFieldMapping()
	line.Store = true
	phase := bleve.NewKeywordFieldMapping()
	phase.Store = true
	seenAt := bleve.NewDateTimeFieldMapping()
	seenAt.Store = true
	isError := bleve.NewBooleanFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldLine, line)
	doc.AddFieldMappingsAt(fieldPhase, phase)
	doc.AddFieldMappingsAt(fieldSeenAt, seenAt)
	doc.AddFieldMappingsAt(fieldError, isError)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// ID is the document ID of a line: the hex blake3 hash of its text.
func ID(line string) string {
	sum := blake3.Sum256([]byte(line))
	return hex.EncodeToString(sum[:])
}

// Add indexes lines not already in the archive and returns how many were new.
// phase is recorded with each new line.
func (a *Archive) Add(phase string, lines []string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := a.now()
	batch := a.idx.NewBatch()
	pending := make(map[string]struct{})
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		id := ID(line)
		if _, dup := pending[id]; dup {
			continue
		}
		existing, err := a.idx.Document(id)
		if err != nil {
			return 0, fmt.Errorf("failed to look up archived line: %w", err)
		}
		if existing != nil {
			continue
		}
		pending[id] = struct{}{}
		if err := batch.Index(id, map[string]interface{}{
			fieldLine:   line,
			fieldPhase:  phase,
			fieldSeenAt: seen,
			fieldError:  strings.Contains(line, "[ERROR]"),
		}); err != nil {
			return 0, fmt.Errorf("failed to queue line for archive: %w", err)
		}
	}
	if batch.Size() == 0 {
		return 0, nil
	}
	if err := a.idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to write log archive batch: %w", err)
	}
	log.Debugf("Archived %d new log lines", len(pending))
	return len(pending), nil
}

// Search runs a bleve query string against the archive; an empty query lists
// everything. Ties in score go to the newest line. Field prefixes such as
// "phase:Fixing" follow bleve's query string syntax.
func (a *Archive) Search(text string, limit int) ([]Hit, uint64, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var q query.Query = bleve.NewMatchAllQuery()
	if strings.TrimSpace(text) != "" {
		q = bleve.NewQueryStringQuery(text)
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldLine, fieldPhase, fieldSeenAt}
	req.SortBy([]string{"-_score", "-" + fieldSeenAt})

	a.mu.Lock()
	res, err := a.idx.Search(req)
	a.mu.Unlock()
	if err != nil {
		return nil, 0, fmt.Errorf("log archive search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields[fieldLine].(string); ok {
			hit.Line = v
		}
		if v, ok := h.Fields[fieldPhase].(string); ok {
			hit.Phase = v
		}
		if v, ok := h.Fields[fieldSeenAt].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				hit.SeenAt = ts
			}
		}
		hits = append(hits, hit)
	}
	return hits, res.Total, nil
}

// Count returns the number of archived lines.
func (a *Archive) Count() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx.DocCount()
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx.Close()
}
