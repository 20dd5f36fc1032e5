package lingomux

import (
	"context"
	"sync"

	"github.com/lingomux/lingomux/pkg/provider"
	"github.com/lingomux/lingomux/pkg/types"
)

// mockProvider is a scripted backend for facade tests. By default it
// echoes "<target>:<text>"; per-text failures can be injected.
type mockProvider struct {
	name string

	mu       sync.Mutex
	calls    int
	failWith map[string]error
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name, failWith: make(map[string]error)}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Execute(ctx context.Context, req *provider.Request) (string, error) {
	m.mu.Lock()
	m.calls++
	err := m.failWith[req.Text]
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return req.TargetLang + ":" + req.Text, nil
}

func (m *mockProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	err := m.failWith[prompt]
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "analysis:" + prompt, nil
}

func (m *mockProvider) failOn(text string, err error) {
	m.mu.Lock()
	m.failWith[text] = err
	m.mu.Unlock()
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fixedCategorizer always returns the same category.
type fixedCategorizer struct {
	category string

	mu    sync.Mutex
	calls int
}

func (f *fixedCategorizer) Categorize(ctx context.Context, text string) (types.Category, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return types.Category{Name: f.category, Confidence: 1}, nil
}

// suffixPostProcessor marks every candidate as fixed by appending a
// suffix.
type suffixPostProcessor struct {
	suffix string
}

func (s suffixPostProcessor) ValidateAndFix(ctx context.Context, source, candidate string) (string, bool) {
	return candidate + s.suffix, true
}

func testLimits() Limits {
	return Limits{RPM: 10000, MaxConcurrent: 8}
}
