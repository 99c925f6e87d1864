package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/common/metrics"

	"golang.org/x/sync/errgroup"
)

// Document is the extracted form of one input reference. Text is empty, not
// absent, when extraction failed; Err then says why.
type Document struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	MediaType string `json:"media_type,omitempty"`
	Source    string `json:"source,omitempty"`
	Name      string `json:"name,omitempty"`
	Tabular   bool   `json:"tabular,omitempty"`
	Err       error  `json:"-"`
}

// Length is the text length in characters.
func (d Document) Length() int {
	return utf8.RuneCountInString(d.Text)
}

// Service runs fetch and extract for a batch of references.
type Service struct {
	fetcher     *Fetcher
	extractor   *Extractor
	maxParallel int
	logger      logger.Logger
}

func NewService(fetcher *Fetcher, extractor *Extractor, maxParallel int, log logger.Logger) *Service {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Service{
		fetcher:     fetcher,
		extractor:   extractor,
		maxParallel: maxParallel,
		logger:      log,
	}
}

// ExtractAll returns one Document per reference, in input order. A failing
// reference yields an empty placeholder and never affects its neighbours.
func (s *Service) ExtractAll(ctx context.Context, refs []string) []Document {
	docs := make([]Document, len(refs))
	if len(refs) == 0 {
		return docs
	}

	var g errgroup.Group
	g.SetLimit(min(len(refs), s.maxParallel))
	for i, ref := range refs {
		g.Go(func() error {
			docs[i] = s.extractOne(ctx, i, ref)
			return nil
		})
	}
	_ = g.Wait()

	return docs
}

func (s *Service) extractOne(ctx context.Context, index int, ref string) (doc Document) {
	doc = Document{Index: index}
	source := classify(ref)

	defer func() {
		if r := recover(); r != nil {
			doc = Document{Index: index, Source: source, Err: fmt.Errorf("extraction panic: %v", r)}
			s.logger.Warn("Document extraction panicked", map[string]interface{}{
				"index":    index,
				"document": Describe(ref),
				"panic":    fmt.Sprint(r),
			})
		}
		result := "ok"
		switch {
		case doc.Err != nil:
			result = "failed"
		case doc.Text == "":
			result = "empty"
		}
		metrics.DocumentsExtracted.WithLabelValues(doc.Source, result).Inc()
	}()

	payload, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		s.logger.Warn("Document fetch failed", map[string]interface{}{
			"index":    index,
			"document": Describe(ref),
			"error":    err,
		})
		doc.Source = source
		doc.Err = err
		return doc
	}
	source = payload.Source

	doc.Text = s.extractor.Extract(ctx, payload)
	doc.MediaType = payload.MediaType
	doc.Source = payload.Source
	doc.Name = payload.Name
	doc.Tabular = IsTabular(payload)
	return doc
}
