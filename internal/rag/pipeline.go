// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package rag

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/jeranaias/sciquery/internal/llm"
)

// Retrieval and answer-quality thresholds.
const (
	// MinimumRelevanceThreshold filters out weak database matches entirely.
	MinimumRelevanceThreshold = 0.4

	// SimilarityThreshold is the floor below which database results trigger
	// the web search fallback.
	SimilarityThreshold = 0.2

	// DBDocsLimit is how many documents to request from the vector store.
	DBDocsLimit = 5

	// WebResultsLimit is how many web search results to request.
	WebResultsLimit = 5
)

// Generator produces completions across the provider rotation.
// *llm.Completer satisfies this.
type Generator interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

// Retriever fetches candidate documents from the vector store.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int, minSimilarity float64) ([]Document, error)
}

// Searcher fetches web results. An exhausted or failing search backend
// returns an empty slice, not an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// Reranker reorders documents by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document) ([]Document, error)
}

// StatusFunc receives stage transitions as the pipeline runs.
type StatusFunc func(Status)

// Pipeline orchestrates the answer flow: validate the question, retrieve
// from the database, rerank, generate, grade, and fall back to web search
// when the database path cannot produce a verified answer.
type Pipeline struct {
	generator Generator
	retriever Retriever
	searcher  Searcher
	reranker  Reranker

	rewriteQueries bool
}

// NewPipeline wires the pipeline collaborators.
func NewPipeline(g Generator, r Retriever, s Searcher, rr Reranker) *Pipeline {
	return &Pipeline{
		generator: g,
		retriever: r,
		searcher:  s,
		reranker:  rr,
	}
}

// WithQueryRewriting enables rewriting the question for vector retrieval
// before the database search.
func (p *Pipeline) WithQueryRewriting(enabled bool) *Pipeline {
	p.rewriteQueries = enabled
	return p
}

// Process answers a question. Stage transitions are reported through emit,
// which may be nil. The returned error is non-nil only for infrastructure
// failures on the database path; quality failures resolve to the web search
// fallback and ultimately to the fixed apology answer.
func (p *Pipeline) Process(ctx context.Context, question string, emit StatusFunc) (*Answer, error) {
	start := time.Now()
	notify := func(s Status) {
		if emit != nil {
			emit(s)
		}
		log.Printf("PIPELINE_STAGE | stage=%q", s)
	}

	notify(StatusValidating)
	scientific, err := p.isScientificQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	if !scientific {
		notify(StatusInvalidQuestion)
		return &Answer{
			Text:           InvalidQuestionAnswer,
			Invalid:        true,
			ProcessingTime: time.Since(start).Seconds(),
		}, nil
	}

	retrievalQuery := question
	if p.rewriteQueries {
		if rewritten, err := p.RewriteQuery(ctx, question); err == nil && rewritten != "" {
			retrievalQuery = rewritten
		}
	}

	notify(StatusSearchingDB)
	docs, err := p.retrieveLocalDocs(ctx, retrievalQuery)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 || allBelowThreshold(docs, SimilarityThreshold) {
		log.Printf("PIPELINE_FALLBACK | reason=insufficient_db_results docs=%d", len(docs))
		return p.webSearchPath(ctx, question, notify)
	}

	notify(StatusAnalyzingPapers)
	reranked, err := p.reranker.Rerank(ctx, question, docs)
	if err != nil {
		return nil, err
	}

	notify(StatusPreparingAnswer)
	answer, err := p.generateAnswer(ctx, question, reranked)
	if err != nil {
		return nil, err
	}

	notify(StatusCheckingAnswer)
	grounded, err := p.gradeHallucination(ctx, answer, reranked)
	if err != nil {
		return nil, err
	}
	if !grounded {
		log.Printf("PIPELINE_FALLBACK | reason=hallucination_check_failed")
		return p.webSearchPath(ctx, question, notify)
	}

	relevant, err := p.gradeAnswerRelevance(ctx, question, answer)
	if err != nil {
		return nil, err
	}
	if !relevant {
		log.Printf("PIPELINE_FALLBACK | reason=relevance_check_failed")
		return p.webSearchPath(ctx, question, notify)
	}

	notify(StatusCompleted)
	return &Answer{
		Text:           answer,
		Documents:      reranked,
		FromWebSearch:  false,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// webSearchPath is the fallback when database retrieval cannot produce a
// verified answer. It never returns an error: any failure resolves to the
// fixed fallback answer so the client always gets a terminal response.
// The clock restarts on entry; a web answer reports the web segment only,
// not the time spent on the abandoned database path.
func (p *Pipeline) webSearchPath(ctx context.Context, question string, notify StatusFunc) (*Answer, error) {
	start := time.Now()
	notify(StatusSearchingWeb)

	docs, err := p.searcher.Search(ctx, question, WebResultsLimit)
	if err != nil {
		log.Printf("WEBSEARCH_ERROR | err=%v", err)
		docs = nil
	}
	if len(docs) == 0 {
		notify(StatusFailed)
		return p.fallbackAnswer(start), nil
	}

	notify(StatusReranking)
	reranked, err := p.reranker.Rerank(ctx, question, docs)
	if err != nil {
		log.Printf("WEBSEARCH_ERROR | stage=rerank err=%v", err)
		notify(StatusFailed)
		return p.fallbackAnswer(start), nil
	}

	notify(StatusPreparingAnswer)
	answer, err := p.generateAnswer(ctx, question, reranked)
	if err != nil {
		log.Printf("WEBSEARCH_ERROR | stage=generate err=%v", err)
		notify(StatusFailed)
		return p.fallbackAnswer(start), nil
	}

	notify(StatusCheckingAnswer)
	grounded, gErr := p.gradeHallucination(ctx, answer, reranked)
	relevant, rErr := p.gradeAnswerRelevance(ctx, question, answer)
	if gErr != nil || rErr != nil || !grounded || !relevant {
		log.Printf("WEBSEARCH_FAILED | grounded=%t relevant=%t", grounded, relevant)
		notify(StatusFailed)
		return p.fallbackAnswer(start), nil
	}

	notify(StatusCompleted)
	return &Answer{
		Text:           answer,
		Documents:      reranked,
		FromWebSearch:  true,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

func (p *Pipeline) fallbackAnswer(start time.Time) *Answer {
	return &Answer{
		Text:           FallbackAnswer,
		FromWebSearch:  true,
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// isScientificQuery asks the validator whether the question needs scientific
// literature. The validator answers "VALID" or "INVALID" first.
func (p *Pipeline) isScientificQuery(ctx context.Context, question string) (bool, error) {
	comp, err := p.generator.Complete(ctx, llm.Request{
		Messages:      validatorMessages(question),
		Temperature:   0.2,
		PreferPrimary: true,
	})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.TrimSpace(comp.Content), "VALID"), nil
}

// RewriteQuery converts the question into a better phrasing for vector
// retrieval.
func (p *Pipeline) RewriteQuery(ctx context.Context, question string) (string, error) {
	comp, err := p.generator.Complete(ctx, llm.Request{
		Messages:    rewriterMessages(question),
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(comp.Content), nil
}

// retrieveLocalDocs queries the vector store and drops weak matches.
func (p *Pipeline) retrieveLocalDocs(ctx context.Context, query string) ([]Document, error) {
	docs, err := p.retriever.Retrieve(ctx, query, DBDocsLimit, SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	relevant := docs[:0]
	for _, d := range docs {
		if d.Similarity >= MinimumRelevanceThreshold {
			relevant = append(relevant, d)
		}
	}
	for _, d := range relevant {
		log.Printf("DB_DOC | title=%q similarity=%.3f", d.Title, d.Similarity)
	}
	return relevant, nil
}

func allBelowThreshold(docs []Document, threshold float64) bool {
	for _, d := range docs {
		if d.Similarity >= threshold {
			return false
		}
	}
	return true
}

// generateAnswer produces the grounded answer from the documents.
func (p *Pipeline) generateAnswer(ctx context.Context, question string, docs []Document) (string, error) {
	comp, err := p.generator.Complete(ctx, llm.Request{
		Messages:      answerMessages(question, docs),
		Temperature:   0.5,
		PreferPrimary: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(comp.Content), nil
}

// gradeHallucination checks that the generation is grounded in the documents.
func (p *Pipeline) gradeHallucination(ctx context.Context, generation string, docs []Document) (bool, error) {
	comp, err := p.generator.Complete(ctx, llm.Request{
		Messages:    hallucinationMessages(docs, generation),
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(comp.Content)), "yes"), nil
}

// gradeAnswerRelevance checks that the generation addresses the question.
func (p *Pipeline) gradeAnswerRelevance(ctx context.Context, question, generation string) (bool, error) {
	comp, err := p.generator.Complete(ctx, llm.Request{
		Messages:    relevanceMessages(question, generation),
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(comp.Content)), "yes"), nil
}
