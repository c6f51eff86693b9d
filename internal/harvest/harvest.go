// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package harvest implements the harvest service: a quality-gated
// retrieval loop combining Hybrid Search, message/content-item dense
// search, a stub classifier, breadcrumb expansion, and de-duplication.
package harvest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/search"
	"github.com/northbound/archivist/internal/store"
)

const minCandidateContentLength = 200

// Options configures one harvest call; zero numeric limits, weights and
// grades fall back to the service defaults. Target, Sources, Types and the
// boolean switches are used as given, so a zero Options leaves
// ExpandBreadcrumbs, PrioritizeConversations and UseHybridSearch off.
type Options struct {
	Target                  int
	SearchLimit             int
	MinWordCount            int
	ExpandBreadcrumbs       bool
	ContextSize             int
	Sources                 []string
	Types                   []string
	PrioritizeConversations bool
	MinGrade                float64
	LengthBonusMax          float64
	LengthBonusDivisor      float64
	UseHybridSearch         bool
	Dedup                   DedupOptions
}

func (o Options) withDefaults() Options {
	if o.SearchLimit <= 0 {
		o.SearchLimit = 100
	}
	if o.MinWordCount <= 0 {
		o.MinWordCount = 75
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 3
	}
	if o.MinGrade <= 0 {
		o.MinGrade = 2.5
	}
	if o.LengthBonusMax <= 0 {
		o.LengthBonusMax = 0.15
	}
	if o.LengthBonusDivisor <= 0 {
		o.LengthBonusDivisor = 500
	}
	return o
}

// Phase names the harvest progress states.
type Phase string

const (
	PhaseSearching Phase = "searching"
	PhaseGrading   Phase = "grading"
	PhaseExpanding Phase = "expanding"
	PhaseComplete  Phase = "complete"
)

// Progress is one snapshot emitted to the caller's progress sink.
type Progress struct {
	Phase    Phase
	Searched int
	Graded   int
	Accepted int
	Rejected int
	Expanded int
	Target   int
	Message  string
}

// Candidate is a unified shape over the three retrieval sources harvest
// draws from: chunks (via Hybrid Search), messages, and content items.
type Candidate struct {
	Kind              string // "chunk", "message", "content_item"
	OwnerID           string // message id / chunk id / content item id
	ConversationID    string
	ConversationTitle string
	Source            string
	Content           string
	Similarity        float64
	WordCount         int
	CreatedAt         time.Time
}

// Expansion is the breadcrumb-expanded neighborhood around a candidate.
type Expansion struct {
	CombinedContent string
	WordCount       int
}

// Accepted is one harvested result.
type Accepted struct {
	Candidate Candidate
	Grade     QuickGrade
	Expanded  *Expansion
}

// Stats summarizes one harvest call.
type Stats struct {
	Searched  int
	Graded    int
	Accepted  int
	Rejected  int
	Expanded  int
	Exhausted bool
}

// Result is harvest's return value.
type Result struct {
	Results []Accepted
	Stats   Stats
}

// Store is the slice of the content graph store harvest reads: the three
// candidate sources plus the conversation neighborhood used by breadcrumb
// expansion. *store.Store satisfies it; tests substitute fakes.
type Store interface {
	search.ChunkStore
	SearchMessages(ctx context.Context, queryVec []float32, limit int, role string) ([]store.SearchMessageHit, error)
	SearchContentItems(ctx context.Context, queryVec []float32, limit int, itemType, source string) ([]store.SearchContentItemHit, error)
	GetMessagesForConversation(ctx context.Context, conversationID string) ([]store.Message, error)
}

// Service wires the harvest algorithm to a Store and an Embedder.
type Service struct {
	store    Store
	embedder embeddings.Embedder
}

func New(s Store, embedder embeddings.Embedder) *Service {
	return &Service{store: s, embedder: embedder}
}

func emit(sink chan<- Progress, p Progress) {
	if sink == nil {
		return
	}
	select {
	case sink <- p:
	default:
	}
}

// Harvest runs the quality-gated retrieval loop, streaming phase
// transitions to sink (which may be nil).
func (s *Service) Harvest(ctx context.Context, query string, opts Options, sink chan<- Progress) (Result, error) {
	opts = opts.withDefaults()

	if opts.Target <= 0 {
		emit(sink, Progress{Phase: PhaseComplete, Target: opts.Target, Message: "target is zero, nothing to search"})
		return Result{Stats: Stats{Exhausted: true}}, nil
	}

	emit(sink, Progress{Phase: PhaseSearching, Target: opts.Target})
	candidates, err := s.gatherCandidates(ctx, query, opts)
	if err != nil {
		return Result{}, err
	}
	searched := len(candidates)
	emit(sink, Progress{Phase: PhaseSearching, Searched: searched, Target: opts.Target})

	sortCandidates(candidates, opts)

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	keptIdx, dedupRejected := Deduplicate(texts, opts.Dedup)
	kept := make([]Candidate, len(keptIdx))
	for i, idx := range keptIdx {
		kept[i] = candidates[idx]
	}

	rejected := dedupRejected
	emit(sink, Progress{Phase: PhaseGrading, Searched: searched, Target: opts.Target, Rejected: rejected})

	var accepted []Accepted
	graded := 0
	expandedCount := 0

	for _, c := range kept {
		if len(accepted) >= opts.Target {
			break
		}
		graded++

		grade := Grade(c.Content)

		// The minimum-length floor is applied after classification, never
		// before it: a breadcrumb is short by definition and earns its
		// length through expansion, so gating it on raw length would make
		// the expansion path unreachable for exactly the candidates it
		// exists for.
		if grade.StubType != StubBreadcrumb && len(c.Content) < minCandidateContentLength {
			rejected++
			emit(sink, Progress{Phase: PhaseGrading, Searched: searched, Graded: graded, Accepted: len(accepted), Rejected: rejected, Expanded: expandedCount, Target: opts.Target})
			continue
		}

		var expansion *Expansion

		if grade.StubType == StubBreadcrumb && opts.ExpandBreadcrumbs && c.ConversationID != "" {
			emit(sink, Progress{Phase: PhaseExpanding, Searched: searched, Graded: graded, Accepted: len(accepted), Target: opts.Target})
			exp, ok := s.expandBreadcrumb(ctx, c, opts)
			if ok && exp.WordCount >= opts.MinWordCount {
				expansion = &exp
				expandedCount++
				grade = Grade(exp.CombinedContent)
				grade.StubType = StubOptimal
			}
		}

		effectiveWordCount := grade.WordCount
		if expansion != nil {
			effectiveWordCount = expansion.WordCount
		}

		if grade.Overall >= opts.MinGrade && effectiveWordCount >= opts.MinWordCount {
			accepted = append(accepted, Accepted{Candidate: c, Grade: grade, Expanded: expansion})
		} else {
			rejected++
		}
		emit(sink, Progress{Phase: PhaseGrading, Searched: searched, Graded: graded, Accepted: len(accepted), Rejected: rejected, Expanded: expandedCount, Target: opts.Target})
	}

	exhausted := len(accepted) < opts.Target
	emit(sink, Progress{Phase: PhaseComplete, Searched: searched, Graded: graded, Accepted: len(accepted), Rejected: rejected, Expanded: expandedCount, Target: opts.Target})

	return Result{
		Results: accepted,
		Stats: Stats{
			Searched:  searched,
			Graded:    graded,
			Accepted:  len(accepted),
			Rejected:  rejected,
			Expanded:  expandedCount,
			Exhausted: exhausted,
		},
	}, nil
}

func (s *Service) gatherCandidates(ctx context.Context, query string, opts Options) ([]Candidate, error) {
	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate

	chunkLimit := 3 * opts.SearchLimit
	if opts.UseHybridSearch {
		hr, err := search.Search(ctx, s.store, query, queryVec, search.Options{SearchLimit: chunkLimit, Limit: chunkLimit})
		if err == nil {
			for _, h := range hr.Hits {
				candidates = append(candidates, Candidate{
					Kind: "chunk", OwnerID: h.Chunk.ID, ConversationID: h.Chunk.ThreadID,
					Content: h.Chunk.Content, Similarity: h.FusedScore, WordCount: h.Chunk.WordCount,
				})
			}
		}
	} else {
		hits, err := s.store.SearchChunks(ctx, queryVec, chunkLimit, nil)
		if err == nil {
			for _, h := range hits {
				candidates = append(candidates, Candidate{
					Kind: "chunk", OwnerID: h.Chunk.ID, ConversationID: h.Chunk.ThreadID,
					Content: h.Chunk.Content, Similarity: float64(h.Similarity), WordCount: h.Chunk.WordCount,
				})
			}
		}
	}

	msgHits, err := s.store.SearchMessages(ctx, queryVec, opts.SearchLimit, "")
	if err == nil {
		for _, h := range msgHits {
			candidates = append(candidates, Candidate{
				Kind: "message", OwnerID: h.ID, ConversationID: h.ConversationID, ConversationTitle: h.ConversationTitle,
				Content: h.Content, Similarity: float64(h.Similarity), WordCount: len(strings.Fields(h.Content)),
			})
		}
	}

	itemTypes := opts.Types
	if len(itemTypes) == 0 {
		itemTypes = []string{""}
	}
	itemSources := opts.Sources
	if len(itemSources) == 0 {
		itemSources = []string{""}
	}
	for _, t := range itemTypes {
		for _, src := range itemSources {
			hits, err := s.store.SearchContentItems(ctx, queryVec, opts.SearchLimit, t, src)
			if err != nil {
				continue
			}
			for _, h := range hits {
				candidates = append(candidates, Candidate{
					Kind: "content_item", OwnerID: h.ID, ConversationID: h.ThreadID, Source: h.Source,
					Content: h.Text, Similarity: float64(h.Similarity), WordCount: len(strings.Fields(h.Text)),
					CreatedAt: h.CreatedAt,
				})
			}
		}
	}

	return candidates, nil
}

func sortCandidates(candidates []Candidate, opts Options) {
	score := func(c Candidate) float64 {
		bonus := float64(c.WordCount) / opts.LengthBonusDivisor
		if bonus > opts.LengthBonusMax {
			bonus = opts.LengthBonusMax
		}
		return c.Similarity + bonus
	}
	isConversation := func(c Candidate) bool { return c.Kind == "chunk" || c.Kind == "message" }

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si > sj
		}
		if opts.PrioritizeConversations {
			ci, cj := isConversation(candidates[i]), isConversation(candidates[j])
			if ci != cj {
				return ci
			}
		}
		return false
	})
}

// expandBreadcrumb fetches the ±contextSize neighboring messages around
// the candidate's owning message and splices them into one combined block.
func (s *Service) expandBreadcrumb(ctx context.Context, c Candidate, opts Options) (Expansion, bool) {
	messages, err := s.store.GetMessagesForConversation(ctx, c.ConversationID)
	if err != nil || len(messages) == 0 {
		return Expansion{}, false
	}

	centerIdx := -1
	for i, m := range messages {
		if m.ID == c.OwnerID || m.Content == c.Content {
			centerIdx = i
			break
		}
	}
	if centerIdx < 0 {
		return Expansion{}, false
	}

	start := centerIdx - opts.ContextSize
	if start < 0 {
		start = 0
	}
	end := centerIdx + opts.ContextSize + 1
	if end > len(messages) {
		end = len(messages)
	}

	var parts []string
	for i := start; i < end; i++ {
		parts = append(parts, messages[i].Content)
	}
	combined := strings.Join(parts, "\n\n---\n\n")
	return Expansion{CombinedContent: combined, WordCount: len(strings.Fields(combined))}, true
}
