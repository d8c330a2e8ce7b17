package llm

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterGenerationMetrics()
	os.Exit(m.Run())
}

type stubGenerator struct {
	outputs  []string
	errs     []error
	calls    int
	describe string
	descErr  error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	var out string
	var err error
	if i < len(s.outputs) {
		out = s.outputs[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return out, err
}

func (s *stubGenerator) Describe(ctx context.Context, image []byte, instruction string) (string, error) {
	return s.describe, s.descErr
}

func newTestGateway(gen domain.Generator, sleeps *[]time.Duration) *Gateway {
	gw := NewGateway(gen, &GatewayConfig{
		Provider:     "test",
		Model:        "test-model",
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		Logger:       zap.NewNop(),
	})
	gw.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return gw
}

func TestGateway_FirstAttemptSucceeds(t *testing.T) {
	gen := &stubGenerator{outputs: []string{"answer"}}
	gw := newTestGateway(gen, nil)

	out, err := gw.GenerateWithRetry(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "answer" {
		t.Errorf("output = %q, expected %q", out, "answer")
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, expected 1", gen.calls)
	}
}

func TestGateway_RetriesWithDoublingDelay(t *testing.T) {
	gen := &stubGenerator{
		outputs: []string{"", "", "recovered"},
		errs:    []error{errors.New("boom"), errors.New("boom"), nil},
	}
	var sleeps []time.Duration
	gw := newTestGateway(gen, &sleeps)

	out, err := gw.GenerateWithRetry(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recovered" {
		t.Errorf("output = %q, expected %q", out, "recovered")
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, expected 3", gen.calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(sleeps))
	}
	if sleeps[0] != 100*time.Millisecond || sleeps[1] != 200*time.Millisecond {
		t.Errorf("sleeps = %v, expected doubling from 100ms", sleeps)
	}
}

func TestGateway_EmptyOutputIsFailure(t *testing.T) {
	gen := &stubGenerator{outputs: []string{"", "", ""}}
	var sleeps []time.Duration
	gw := newTestGateway(gen, &sleeps)

	_, err := gw.GenerateWithRetry(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error for persistently empty output")
	}
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, expected exactly 3", gen.calls)
	}

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T", err)
	}
	if genErr.Attempts != 3 {
		t.Errorf("Attempts = %d, expected 3", genErr.Attempts)
	}
}

func TestGateway_ContextCancelledDuringBackoff(t *testing.T) {
	gen := &stubGenerator{outputs: []string{"", "", ""}}
	gw := NewGateway(gen, &GatewayConfig{
		Provider:     "test",
		Model:        "test-model",
		MaxRetries:   3,
		InitialDelay: time.Hour,
		Logger:       zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.GenerateWithRetry(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, expected 1 before cancelled wait", gen.calls)
	}
}

func TestGateway_DescribeImageFallback(t *testing.T) {
	gen := &stubGenerator{descErr: errors.New("vision unavailable")}
	gw := newTestGateway(gen, nil)

	got := gw.DescribeImage(context.Background(), []byte{1, 2, 3}, "describe")
	if got != FallbackDescription {
		t.Errorf("expected fallback description, got %q", got)
	}
}

func TestGateway_DescribeImageSuccess(t *testing.T) {
	gen := &stubGenerator{describe: "A scatter plot."}
	gw := newTestGateway(gen, nil)

	got := gw.DescribeImage(context.Background(), nil, "describe")
	if got != "A scatter plot." {
		t.Errorf("unexpected description: %q", got)
	}
}
