// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/archivist/internal/config"
	"github.com/northbound/archivist/internal/discovery"
	"github.com/northbound/archivist/internal/embeddings"
	"github.com/northbound/archivist/internal/harvest"
	"github.com/northbound/archivist/internal/importpipeline"
	"github.com/northbound/archivist/internal/indexer"
	"github.com/northbound/archivist/internal/linkgraph"
	"github.com/northbound/archivist/internal/logger"
	"github.com/northbound/archivist/internal/queue"
	"github.com/northbound/archivist/internal/store"
	"github.com/northbound/archivist/internal/walker"
)

// handles bundles the singleton service surface, the only things a
// surrounding HTTP layer would couple to. Built on startup, rebuilt
// wholesale on archive switch.
type handles struct {
	Store     *store.Store
	Indexer   *indexer.Indexer
	Harvest   *harvest.Service
	Discovery *discovery.Service
	LinkGraph *linkgraph.Graph
	Pipeline  *importpipeline.Pipeline
	embedder  embeddings.Embedder
	grpcConn  *grpc.ClientConn
}

func (h *handles) Close() {
	if h.grpcConn != nil {
		h.grpcConn.Close()
	}
	if h.Store != nil {
		h.Store.Close()
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "archivist:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("missing subcommand")
	}

	godotenv.Load() // optional; absence is not an error

	logPath := os.Getenv("ARCHIVIST_LOG_FILE")
	if logPath == "" {
		logPath = "archivist.log"
	}
	if _, err := logger.Init(logPath); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfgPath := os.Getenv("ARCHIVIST_CONFIG")
	if cfgPath == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		cfgPath = defaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "index":
		return runIndex(ctx, cfg, args[1:])
	case "import":
		return runImport(ctx, cfg, args[1:])
	case "harvest":
		return runHarvest(ctx, cfg, args[1:])
	case "discover":
		return runDiscover(ctx, cfg, args[1:])
	case "links":
		return runLinks(ctx, cfg, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: archivist <command> [flags]

commands:
  index     walk an archive export and embed its conversations
  import    parse loose documents (pdf/docx/xlsx/html/eml/txt) into the store
  harvest   run the quality-gated retrieval loop over a query
  discover  print the current metadata facets
  links     inspect or traverse the link graph`)
}

// openHandles wires every component against one Store + Embedder pair. The
// Qdrant connection is optional: without ARCHIVIST_QDRANT_ADDR the vector
// index stays unattached and dense search degrades per each package's own
// "no vector index" error path.
func openHandles(ctx context.Context, cfg config.Config) (*handles, error) {
	dbPath := os.Getenv("ARCHIVIST_DB_PATH")
	if dbPath == "" {
		dbPath = "archivist.db"
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	h := &handles{Store: s, embedder: embedder}

	if addr := os.Getenv("ARCHIVIST_QDRANT_ADDR"); addr != "" {
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		defer dialCancel()
		conn, err := grpc.DialContext(dialCtx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("dial qdrant at %s: %w", addr, err)
		}
		vec, err := store.NewVectorIndex(conn, cfg.Embeddings.Dimensions)
		if err != nil {
			conn.Close()
			h.Close()
			return nil, fmt.Errorf("attach vector index: %w", err)
		}
		h.grpcConn = conn
		s.Vector = vec
	} else {
		logger.Warnf("ARCHIVIST_QDRANT_ADDR not set; running without a vector index (dense search disabled)")
	}

	h.Discovery = discovery.NewService(s, discovery.Options{})
	h.Harvest = harvest.New(s, embedder)
	h.LinkGraph = linkgraph.New(s)
	h.Pipeline = importpipeline.New(s, embedder, nil)

	// The import pipeline's embedding batches default to an in-process
	// queue.MemoryQueue-equivalent (processed inline). Opting into
	// ARCHIVIST_IMPORT_QUEUE=redis swaps in queue.RedisQueue so a separate
	// worker process draining the same Redis list key could pick up a
	// batch instead.
	if os.Getenv("ARCHIVIST_IMPORT_QUEUE") == "redis" {
		rdb, err := config.NewRedisClient(ctx)
		if err != nil {
			logger.Warnf("import queue disabled, could not reach redis: %v", err)
		} else {
			q, err := queue.NewRedisQueue(rdb, queue.DefaultKey)
			if err != nil {
				logger.Warnf("import queue disabled, could not start redis queue: %v", err)
			} else {
				h.Pipeline.EmbedQueue = q
			}
		}
	} else {
		h.Pipeline.EmbedQueue = queue.NewMemoryQueue(256)
	}
	return h, nil
}

func buildEmbedder(cfg config.Config) (embeddings.Embedder, error) {
	backend := os.Getenv("ARCHIVIST_EMBEDDER")
	if backend == "" {
		backend = "mock"
	}

	var base embeddings.Embedder
	var err error
	switch backend {
	case "openai":
		base, err = embeddings.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), os.Getenv("ARCHIVIST_EMBEDDER_MODEL"))
	case "ollama":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		base, err = embeddings.NewOllamaEmbedder(baseURL, os.Getenv("ARCHIVIST_EMBEDDER_MODEL"))
	default:
		base = embeddings.NewMockEmbedder(cfg.Embeddings.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb, err := config.NewRedisClient(context.Background())
		if err != nil {
			logger.Warnf("embedding cache disabled, could not reach redis: %v", err)
			return base, nil
		}
		ttl := time.Duration(cfg.Cache.EmbeddingCacheTTLMs) * time.Millisecond
		return embeddings.NewCachedEmbedder(base, rdb, ttl), nil
	}
	return base, nil
}

func runIndex(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	root := fs.String("root", "", "archive export root (required)")
	source := fs.String("source", "chatgpt", "source label stamped on every conversation")
	interestingOnly := fs.Bool("interesting-only", false, "only embed conversations flagged interesting")
	paragraphs := fs.Bool("paragraphs", true, "chunk and embed message content at paragraph granularity")
	contentAware := fs.Bool("content-aware-chunking", true, "use the content analyzer's span-aware chunker")
	blocks := fs.Bool("content-blocks", true, "extract and embed code/artifact/canvas content blocks")
	watch := fs.Bool("watch", false, "after the first pass, re-index whenever fsnotify reports a changed conversation folder")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("-root is required")
	}

	h, err := openHandles(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	h.Indexer = indexer.New(h.Store, h.embedder, *root, *source)
	opts := indexer.Options{
		InterestingOnly:         *interestingOnly,
		IncludeParagraphs:       *paragraphs,
		UseContentAwareChunking: *contentAware,
		ExtractContentBlocks:    *blocks,
	}
	cancelled := func() bool { return ctx.Err() != nil }

	if err := indexOnce(ctx, h.Indexer, opts, cancelled); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	dirty, err := walker.Watch(ctx, *root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", *root, err)
	}
	logger.Printf("index: watching %s for changes (ctrl-c to stop)", *root)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed := dirty.Drain()
			if len(changed) == 0 {
				continue
			}
			logger.Printf("index: %d folder(s) changed, re-indexing", len(changed))
			if err := indexOnce(ctx, h.Indexer, opts, cancelled); err != nil {
				return err
			}
		}
	}
}

func indexOnce(ctx context.Context, idx *indexer.Indexer, opts indexer.Options, cancelled func() bool) error {
	sink := make(chan indexer.Progress, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range sink {
			logger.Printf("index: %s %d/%d %s", p.Phase, p.Current, p.Total, p.CurrentItem)
		}
	}()

	runErr := idx.Run(ctx, opts, sink, cancelled)
	close(sink)
	<-done
	return runErr
}

func runImport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	root := fs.String("root", "", "directory of loose documents to import (required)")
	source := fs.String("source", "import", "source label stamped on every content item")
	skipEmbeddings := fs.Bool("skip-embeddings", false, "persist content items without embedding them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("-root is required")
	}

	h, err := openHandles(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	job, err := h.Pipeline.Import(ctx, *root, importpipeline.ImportOptions{
		Source:       *source,
		ParseOptions: importpipeline.ParseOptions{SkipEmbeddings: *skipEmbeddings},
	})
	logger.Printf("import: job %s status=%s units=%d/%d errors=%d", job.ID, job.Status, job.UnitsProcessed, job.UnitsTotal, job.ErrorsCount)
	return err
}

func runHarvest(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	query := fs.String("query", "", "retrieval query (required)")
	target := fs.Int("target", cfg.Harvest.DefaultTarget, "number of passages to accept")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *query == "" {
		return fmt.Errorf("-query is required")
	}

	h, err := openHandles(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	opts := harvest.Options{
		Target:                  *target,
		SearchLimit:             cfg.Harvest.SearchLimit,
		MinWordCount:            cfg.Harvest.MinWordCount,
		ExpandBreadcrumbs:       cfg.Harvest.ExpandBreadcrumbs,
		ContextSize:             cfg.Harvest.ContextSize,
		PrioritizeConversations: cfg.Harvest.PrioritizeConversations,
		MinGrade:                cfg.Harvest.MinGrade,
		LengthBonusMax:          cfg.Harvest.LengthBonusMax,
		LengthBonusDivisor:      cfg.Harvest.LengthBonusDivisor,
		UseHybridSearch:         cfg.Harvest.UseHybridSearch,
		Dedup: harvest.DedupOptions{
			Method:           harvest.DedupMethod(cfg.Harvest.Deduplication.Method),
			PrefixLength:     cfg.Harvest.Deduplication.PrefixLength,
			JaccardThreshold: cfg.Harvest.Deduplication.JaccardThreshold,
		},
	}

	sink := make(chan harvest.Progress, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range sink {
			logger.Printf("harvest: %s searched=%d graded=%d accepted=%d", p.Phase, p.Searched, p.Graded, p.Accepted)
		}
	}()

	result, err := h.Harvest.Harvest(ctx, *query, opts, sink)
	close(sink)
	<-done
	if err != nil {
		return err
	}

	for i, r := range result.Results {
		fmt.Printf("%d. [%s] grade=%.2f words=%d\n%s\n\n", i+1, r.Candidate.Kind, r.Grade.Overall, r.Grade.WordCount, preview(r.Candidate.Content))
	}
	fmt.Printf("searched=%d graded=%d accepted=%d rejected=%d expanded=%d exhausted=%v\n",
		result.Stats.Searched, result.Stats.Graded, result.Stats.Accepted, result.Stats.Rejected, result.Stats.Expanded, result.Stats.Exhausted)
	return nil
}

func preview(text string) string {
	const maxLen = 300
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func runDiscover(ctx context.Context, cfg config.Config, args []string) error {
	h, err := openHandles(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	result, err := h.Discovery.Discover(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total records: %d\n", result.TotalRecords)
	for _, f := range result.Facets {
		fmt.Printf("- %s (%s) coverage=%.1f%% distinct=%d\n", f.Name, f.Kind, f.Coverage, f.DistinctCount)
	}
	return nil
}

func runLinks(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("links", flag.ExitOnError)
	uri := fs.String("uri", "", "content:// or media:// URI to inspect (required)")
	depth := fs.Int("depth", 1, "traversal depth (capped at 5)")
	direction := fs.String("direction", "both", "outgoing, incoming, or both")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uri == "" {
		return fmt.Errorf("-uri is required")
	}

	h, err := openHandles(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	if *depth <= 1 {
		links, err := h.LinkGraph.FindLinks(ctx, *uri, *direction, "", 100)
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Printf("%s: %s -[%s]-> %s (%.2f)\n", l.Direction, l.SourceURI, l.LinkType, l.TargetURI, l.LinkStrength)
		}
		return nil
	}

	sub, err := h.LinkGraph.Graph(ctx, *uri, *depth, nil)
	if err != nil {
		return err
	}
	for _, n := range sub.Nodes {
		fmt.Println("node:", n.URI)
	}
	for _, e := range sub.Edges {
		fmt.Printf("edge: %s -[%s]-> %s (%.2f)\n", e.SourceURI, e.LinkType, e.TargetURI, e.Strength)
	}
	return nil
}
