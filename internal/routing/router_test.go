package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	lmerrors "github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"

	"github.com/lingomux/lingomux/internal/admission"
)

// fakeProvider replays a scripted sequence of responses; the last entry
// repeats once the script runs out.
type fakeProvider struct {
	name string

	mu     sync.Mutex
	script []func() (string, error)
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Execute(ctx context.Context, req *provider.Request) (string, error) {
	f.mu.Lock()
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	fn := f.script[i]
	f.calls++
	f.mu.Unlock()
	return fn()
}

func (f *fakeProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	return f.Execute(ctx, &provider.Request{Text: prompt})
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeed(v string) func() (string, error) {
	return func() (string, error) { return v, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

func newTestRouter(t *testing.T, providers ...provider.Provider) (*Router, *admission.Controller) {
	t.Helper()

	limits := make([]admission.ProviderLimit, 0, len(providers))
	for _, p := range providers {
		limits = append(limits, admission.ProviderLimit{
			Name:   p.Name(),
			Limits: provider.Limits{RPM: 10000, MaxConcurrent: 16},
		})
	}
	ctrl, err := admission.New(limits, admission.Config{})
	if err != nil {
		t.Fatalf("admission controller: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	r, err := New(Config{Providers: providers, Dispatcher: ctrl})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return r, ctrl
}

func translateOp(ctx context.Context, p provider.Provider) (string, error) {
	return p.Execute(ctx, &provider.Request{Text: "hello", TargetLang: "de"})
}

func TestExecute_FirstProviderSucceeds(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){succeed("hallo")}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){succeed("nope")}}
	r, _ := newTestRouter(t, p1, p2)

	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Value != "hallo" || res.Provider != "alpha" || res.Attempts != 1 {
		t.Fatalf("result = %+v", res)
	}
	if p2.callCount() != 0 {
		t.Fatal("second provider should not have been called")
	}
}

func TestExecute_FallsBackOnRetryableFailure(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 503, "upstream down")),
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){succeed("hallo")}}
	r, _ := newTestRouter(t, p1, p2)

	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "beta" || res.Attempts != 2 {
		t.Fatalf("result = %+v", res)
	}

	hs := r.Health()
	if hs["alpha"].FailureCount != 1 {
		t.Fatalf("alpha failures = %d, want 1", hs["alpha"].FailureCount)
	}
	if hs["beta"].SuccessCount != 1 {
		t.Fatalf("beta successes = %d, want 1", hs["beta"].SuccessCount)
	}
}

func TestExecute_ThirdProviderWinsAfterTwoFailures(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 500, "down")),
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){
		fail(lmerrors.NewNetworkError("beta", "refused")),
	}}
	p3 := &fakeProvider{name: "gamma", script: []func() (string, error){succeed("hallo")}}
	r, _ := newTestRouter(t, p1, p2, p3)

	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "gamma" || res.Value != "hallo" {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts > len(r.Chain())*(r.maxRetries+1) {
		t.Fatalf("attempts = %d exceeds the chain budget", res.Attempts)
	}

	hs := r.Health()
	if hs["alpha"].ConsecutiveFailures != 1 || hs["beta"].ConsecutiveFailures != 1 {
		t.Fatalf("failing providers should each have one consecutive failure: %+v", hs)
	}
	if hs["gamma"].SuccessCount != 1 {
		t.Fatalf("gamma successes = %d, want 1", hs["gamma"].SuccessCount)
	}
}

func TestExecute_NonRetryableAbortsImmediately(t *testing.T) {
	authErr := lmerrors.NewAuthError("alpha", "bad key")
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){fail(authErr)}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){succeed("unused")}}
	r, _ := newTestRouter(t, p1, p2)

	_, err := r.Execute(context.Background(), translateOp, 0)
	var pe *lmerrors.ProviderError
	if !errors.As(err, &pe) || pe.Class != lmerrors.ClassAuth {
		t.Fatalf("err = %v, want authentication error", err)
	}
	if p2.callCount() != 0 {
		t.Fatal("non-retryable failure should not reach the next provider")
	}
}

func TestExecute_ExhaustionReturnsFallbackError(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 500, "boom sk-abcdefghijklmnop1234")),
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){
		fail(lmerrors.NewNetworkError("beta", "connection refused")),
	}}
	r, _ := newTestRouter(t, p1, p2)

	_, err := r.Execute(context.Background(), translateOp, 0)
	var fe *lmerrors.FallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FallbackError", err)
	}
	if fe.Attempts != 2 || len(fe.Records) != 2 {
		t.Fatalf("attempts = %d records = %d, want 2/2", fe.Attempts, len(fe.Records))
	}
	if fe.Records[0].Label != "provider_1" || fe.Records[1].Label != "provider_2" {
		t.Fatalf("labels = %q, %q", fe.Records[0].Label, fe.Records[1].Label)
	}

	pub := fe.Public()
	if strings.Contains(pub, "alpha") || strings.Contains(pub, "beta") {
		t.Fatalf("public view leaks provider names: %s", pub)
	}
	if strings.Contains(pub, "sk-abcdefghijklmnop1234") {
		t.Fatalf("public view leaks a credential: %s", pub)
	}
	if !strings.Contains(pub, "[redacted]") {
		t.Fatalf("credential should be redacted: %s", pub)
	}
	if !strings.Contains(fe.Internal(), "alpha") {
		t.Fatalf("internal view should name providers: %s", fe.Internal())
	}
}

func TestExecute_MaxRetriesAddsChainPasses(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 500, "down")),
	}}
	ctrl, err := admission.New([]admission.ProviderLimit{
		{Name: "alpha", Limits: provider.Limits{RPM: 10000, MaxConcurrent: 16}},
	}, admission.Config{})
	if err != nil {
		t.Fatalf("admission controller: %v", err)
	}
	defer ctrl.Close()

	r, err := New(Config{Providers: []provider.Provider{p1}, Dispatcher: ctrl, MaxRetries: 2})
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	_, execErr := r.Execute(context.Background(), translateOp, 0)
	var fe *lmerrors.FallbackError
	if !errors.As(execErr, &fe) {
		t.Fatalf("err = %v, want FallbackError", execErr)
	}
	if fe.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (1 provider x 3 passes)", fe.Attempts)
	}
	if p1.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", p1.callCount())
	}
}

func TestDisableAfterConsecutiveFailures(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 500, "down")),
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){succeed("ok")}}
	r, _ := newTestRouter(t, p1, p2)

	base := time.Now()
	clock := base
	var clockMu sync.Mutex
	r.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	// Three routed calls, each failing over from alpha to beta. The
	// rotation cursor moves on every failure, so re-pin it to alpha
	// before each call to keep alpha first.
	for i := 0; i < disableThreshold; i++ {
		r.mu.Lock()
		r.cursor = 0
		for j, p := range r.chain {
			if p.Name() == "alpha" {
				r.cursor = j
			}
		}
		r.mu.Unlock()

		if _, err := r.Execute(context.Background(), translateOp, 0); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if !r.Health()["alpha"].Disabled {
		t.Fatal("alpha should be disabled after three consecutive failures")
	}

	// While disabled, alpha is skipped entirely.
	calls := p1.callCount()
	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil || res.Provider != "beta" || res.Attempts != 1 {
		t.Fatalf("result = %+v err = %v", res, err)
	}
	if p1.callCount() != calls {
		t.Fatal("disabled provider should not receive traffic")
	}

	// After the window passes the provider is lazily reinstated.
	clockMu.Lock()
	clock = base.Add(defaultDisableWindow + time.Second)
	clockMu.Unlock()
	if r.Health()["alpha"].Disabled {
		t.Fatal("alpha should be eligible again after the disable window")
	}
}

func TestAllDisabledResetsChain(t *testing.T) {
	p1 := &fakeProvider{name: "solo", script: []func() (string, error){
		fail(lmerrors.NewServerError("solo", 500, "down")),
		fail(lmerrors.NewServerError("solo", 500, "down")),
		fail(lmerrors.NewServerError("solo", 500, "down")),
		succeed("recovered"),
	}}
	r, _ := newTestRouter(t, p1)

	for i := 0; i < disableThreshold; i++ {
		if _, err := r.Execute(context.Background(), translateOp, 0); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	if !r.Health()["solo"].Disabled {
		t.Fatal("sole provider should be disabled")
	}

	// With the whole chain disabled the windows are cleared and the
	// call still probes the provider.
	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if res.Value != "recovered" {
		t.Fatalf("value = %q", res.Value)
	}
}

func TestRerankReordersByScore(t *testing.T) {
	p1 := &fakeProvider{name: "alpha"}
	p2 := &fakeProvider{name: "beta"}
	p3 := &fakeProvider{name: "gamma"}
	r, _ := newTestRouter(t, p1, p2, p3)

	r.mu.Lock()
	r.health["alpha"] = &health{successCount: 1, failureCount: 9, avgResponseMs: 100}
	r.health["beta"] = &health{successCount: 9, failureCount: 1, avgResponseMs: 100}
	r.health["gamma"] = &health{successCount: 5, failureCount: 5, avgResponseMs: 100}
	r.rerankLocked()
	r.mu.Unlock()

	got := r.Chain()
	want := []string{"beta", "gamma", "alpha"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain = %v, want %v", got, want)
		}
	}
}

func TestRerankResetsRotationCursor(t *testing.T) {
	p1 := &fakeProvider{name: "worst", script: []func() (string, error){succeed("w")}}
	p2 := &fakeProvider{name: "mid", script: []func() (string, error){succeed("m")}}
	p3 := &fakeProvider{name: "best", script: []func() (string, error){succeed("b")}}
	r, _ := newTestRouter(t, p1, p2, p3)

	// Failures left the rotation cursor mid-chain before the re-rank.
	r.mu.Lock()
	r.health["worst"] = &health{successCount: 1, failureCount: 9, avgResponseMs: 100}
	r.health["mid"] = &health{successCount: 5, failureCount: 5, avgResponseMs: 100}
	r.health["best"] = &health{successCount: 9, failureCount: 1, avgResponseMs: 100}
	r.cursor = 2
	r.rerankLocked()
	cursor := r.cursor
	r.mu.Unlock()

	if cursor != 0 {
		t.Fatalf("cursor = %d after re-rank, want 0", cursor)
	}

	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "best" {
		t.Fatalf("post-rerank call went to %q, want the best-scored provider", res.Provider)
	}
}

func TestSuccessLatencyExcludesEarlierAttempts(t *testing.T) {
	base := time.Now()
	clock := base
	var clockMu sync.Mutex
	advance := func(d time.Duration) {
		clockMu.Lock()
		clock = clock.Add(d)
		clockMu.Unlock()
	}

	// alpha burns ten seconds before failing; beta answers in 100ms.
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		func() (string, error) {
			advance(10 * time.Second)
			return "", lmerrors.NewServerError("alpha", 500, "down")
		},
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){
		func() (string, error) {
			advance(100 * time.Millisecond)
			return "hallo", nil
		},
	}}
	r, _ := newTestRouter(t, p1, p2)
	r.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	res, err := r.Execute(context.Background(), translateOp, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "beta" {
		t.Fatalf("provider = %q, want beta", res.Provider)
	}

	avg := r.Health()["beta"].AvgResponseMs
	if avg != 100 {
		t.Fatalf("beta avg response = %vms, want 100 (only its own attempt)", avg)
	}
}

func TestRerankSkippedWithoutEnoughSamples(t *testing.T) {
	p1 := &fakeProvider{name: "alpha"}
	p2 := &fakeProvider{name: "beta"}
	r, _ := newTestRouter(t, p1, p2)

	r.mu.Lock()
	r.health["alpha"] = &health{successCount: 1, failureCount: 9}
	r.health["beta"] = &health{successCount: 2} // below the sample floor
	r.rerankLocked()
	r.mu.Unlock()

	got := r.Chain()
	if got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("chain should be unchanged, got %v", got)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){succeed("unused")}}
	r, _ := newTestRouter(t, p1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, translateOp, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRerankCadenceThroughExecute(t *testing.T) {
	// alpha always fails, beta always succeeds; after ten completed
	// operations both have enough samples and beta is ranked first.
	p1 := &fakeProvider{name: "alpha", script: []func() (string, error){
		fail(lmerrors.NewServerError("alpha", 500, "down")),
	}}
	p2 := &fakeProvider{name: "beta", script: []func() (string, error){succeed("ok")}}
	r, _ := newTestRouter(t, p1, p2)

	for i := 0; i < rerankInterval; i++ {
		r.mu.Lock()
		r.cursor = 0
		for j, p := range r.chain {
			if p.Name() == "alpha" {
				r.cursor = j
			}
		}
		r.mu.Unlock()

		if _, err := r.Execute(context.Background(), translateOp, 0); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	got := r.Chain()
	if got[0] != "beta" {
		t.Fatalf("chain = %v, want beta first", got)
	}
}
