// Package analysis sequences the full question-answering pipeline:
// normalize sources, rebuild the embedding index, retrieve context,
// ask the model, parse, and render the optional chart.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/answer"
	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/plot"
	"github.com/datalens-ai/datalens/internal/prompt"
	"github.com/datalens-ai/datalens/internal/scrape"
	"github.com/datalens-ai/datalens/internal/tabular"
)

// NoDataAnswer is returned when no tabular source could be obtained.
const NoDataAnswer = "no data found"

const describeInstruction = "Describe the contents of this image concisely. " +
	"It accompanies a data analysis question and may show a chart or a table."

// Fetcher retrieves tables and text from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (scrape.Result, error)
}

// Gateway is the retrying LLM front.
type Gateway interface {
	GenerateWithRetry(ctx context.Context, prompt string) (string, error)
	DescribeImage(ctx context.Context, image []byte, instruction string) string
}

// Searcher is the rebuildable retrieval index.
type Searcher interface {
	Rebuild(ctx context.Context, chunks []string) error
	Query(ctx context.Context, text string, topK int) ([]string, error)
}

// Renderer turns a plot_code value into an image data URI.
type Renderer interface {
	Execute(code string, tables map[string]*domain.Table) string
}

// Request is one analysis job.
type Request struct {
	Question string
	Upload   *Upload
	Image    []byte
}

// Upload is an optional tabular file attached to the request.
type Upload struct {
	Name string
	Data []byte
}

// Service runs the pipeline for one request at a time against a shared
// index store.
type Service struct {
	searcher Searcher
	fetcher  Fetcher
	gateway  Gateway
	renderer Renderer
	logger   *zap.Logger

	topK          int
	pageTextLimit int
	timeout       time.Duration

	// mu serializes rebuild+query: the store is fully replaced per
	// request, so concurrent pipelines would read each other's chunks.
	mu sync.Mutex
}

// ServiceConfig wires the pipeline stages together.
type ServiceConfig struct {
	Searcher      Searcher
	Fetcher       Fetcher
	Gateway       Gateway
	Renderer      Renderer
	TopK          int
	PageTextLimit int
	Timeout       time.Duration
	Logger        *zap.Logger
}

// NewService creates the orchestrator.
func NewService(cfg *ServiceConfig) *Service {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &Service{
		searcher:      cfg.Searcher,
		fetcher:       cfg.Fetcher,
		gateway:       cfg.Gateway,
		renderer:      cfg.Renderer,
		logger:        cfg.Logger,
		topK:          topK,
		pageTextLimit: cfg.PageTextLimit,
		timeout:       timeout,
	}
}

var urlRegex = regexp.MustCompile(`https?://[^\s"'<>)]+`)

// ExtractURL returns the first URL mentioned in the question, if any.
func ExtractURL(question string) string {
	return urlRegex.FindString(question)
}

// Analyze runs the full pipeline under the service deadline. The
// returned payload is always well-formed; errors are reserved for
// request-level failures (generation exhausted, deadline, provider
// outage).
func (s *Service) Analyze(ctx context.Context, req Request) (payload map[string]any, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("analysis panicked", zap.Any("panic", rec))
			payload, err = nil, fmt.Errorf("analysis failed: unexpected internal error")
		}
	}()

	tables, pageText := s.collectSources(ctx, req)
	if len(tables) == 0 {
		s.logger.Info("no tabular source obtained", zap.String("question", req.Question))
		return domain.Unknown(NoDataAnswer).Payload(), nil
	}

	chunks := tabular.Chunks(tables)
	retrieved, err := s.retrieve(ctx, req.Question, chunks)
	if err != nil {
		return nil, s.classify(ctx, err)
	}

	var imageDesc string
	if len(req.Image) > 0 {
		imageDesc = s.gateway.DescribeImage(ctx, req.Image, describeInstruction)
	}

	raw, err := s.gateway.GenerateWithRetry(ctx, prompt.Build(prompt.Input{
		Question:         req.Question,
		Chunks:           retrieved,
		ImageDescription: imageDesc,
		PageText:         pageText,
		Tables:           tables,
		PageTextLimit:    s.pageTextLimit,
	}))
	if err != nil {
		return nil, s.classify(ctx, err)
	}

	ans := answer.Parse(raw)
	if ans.PlotCode != "" {
		if plot.WantsPlot(ans.PlotCode) {
			ans.PlotCode = s.renderer.Execute(ans.PlotCode, tables)
		} else {
			ans.PlotCode = ""
		}
	}

	return ans.Payload(), nil
}

// collectSources gathers tables from the question's URL and the upload.
// Every failure here is per-source and non-fatal.
func (s *Service) collectSources(ctx context.Context, req Request) (map[string]*domain.Table, string) {
	tables := make(map[string]*domain.Table)
	var pageText string

	if url := ExtractURL(req.Question); url != "" {
		res, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			s.logger.Warn("scrape failed", zap.String("url", url), zap.Error(err))
		} else {
			pageText = res.PageText
			if tbl := scrape.ChooseTable(res.Tables); tbl != nil {
				tables[tbl.Name] = tbl
			}
		}
	}

	if req.Upload != nil && len(req.Upload.Data) > 0 {
		format, err := tabular.DetectFormat(req.Upload.Name)
		if err != nil {
			s.logger.Warn("unsupported upload", zap.String("name", req.Upload.Name), zap.Error(err))
			return tables, pageText
		}
		tbl, err := tabular.Decode(tabular.Source{Name: req.Upload.Name, Format: format, Data: req.Upload.Data})
		if err != nil {
			s.logger.Warn("upload decode failed", zap.String("name", req.Upload.Name), zap.Error(err))
			return tables, pageText
		}
		if !tbl.IsEmpty() {
			tables[tbl.Name] = tbl
		}
	}

	return tables, pageText
}

// retrieve replaces the index contents and queries it under one lock.
func (s *Service) retrieve(ctx context.Context, question string, chunks []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.searcher.Rebuild(ctx, chunks); err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	retrieved, err := s.searcher.Query(ctx, question, s.topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return retrieved, nil
}

// classify maps a pipeline error to its request-level sentinel. Deadline
// expiry wins over whatever stage error it caused.
func (s *Service) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrDeadline, err)
	}
	return err
}
