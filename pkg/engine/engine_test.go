package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/knikam3027/jnj/pkg/answerengine"
	"github.com/knikam3027/jnj/pkg/answerengine/httpengine"
	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/classifier"
	"github.com/knikam3027/jnj/pkg/guardrail"
	"github.com/knikam3027/jnj/pkg/observability"
	"github.com/knikam3027/jnj/pkg/provider"
	"github.com/knikam3027/jnj/pkg/rewriter"
	"github.com/knikam3027/jnj/pkg/session"
	"github.com/knikam3027/jnj/pkg/session/memory"
)

// mockGate implements Gate for testing.
type mockGate struct {
	verdict guardrail.Verdict
	err     error
	calls   atomic.Int32
}

func (g *mockGate) Classify(_ context.Context, _ string) (guardrail.Verdict, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	if g.verdict == "" {
		return guardrail.Safe, nil
	}
	return g.verdict, nil
}

// mockRewriter implements Rewriter. Without a result it echoes the query.
type mockRewriter struct {
	result  *rewriter.Result
	err     error
	calls   atomic.Int32
	history []api.Turn
}

func (r *mockRewriter) Rewrite(_ context.Context, query string, history []api.Turn) (rewriter.Result, error) {
	r.calls.Add(1)
	r.history = history
	if r.err != nil {
		return rewriter.Result{}, r.err
	}
	if r.result != nil {
		return *r.result, nil
	}
	return rewriter.Result{Text: query, Terminated: true}, nil
}

// mockAnswerer implements Answerer.
type mockAnswerer struct {
	answer   string
	err      error
	fn       func(ctx context.Context, question string) (string, error)
	calls    atomic.Int32
	mu       sync.Mutex
	question string
}

func (a *mockAnswerer) Answer(ctx context.Context, question string) (string, error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.question = question
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(ctx, question)
	}
	return a.answer, a.err
}

type testEngine struct {
	*Engine
	store    *memory.Store
	gate     *mockGate
	rewriter *mockRewriter
	answerer *mockAnswerer
}

func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()
	te := &testEngine{
		store:    memory.New(0),
		gate:     &mockGate{},
		rewriter: &mockRewriter{},
		answerer: &mockAnswerer{answer: "Hello! How can I help?"},
	}
	eng, err := New(Deps{
		Store:      te.store,
		Gate:       te.gate,
		Rewriter:   te.rewriter,
		Answerer:   te.answerer,
		Classifier: classifier.New(classifier.DefaultTable()),
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	te.Engine = eng
	return te
}

func request(inputs string) *api.QueryRequest {
	return &api.QueryRequest{
		Inputs:     inputs,
		Parameters: api.Parameters{UserID: "u1", RequestID: "r1"},
	}
}

const testKey = "u1_r1"

func turns(t *testing.T, s session.Store) []api.Turn {
	t.Helper()
	got, err := s.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return got
}

func seed(t *testing.T, s session.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		turn := api.UserTurn(fmt.Sprintf("question %d", i))
		if i%2 == 1 {
			turn = api.AssistantTurn(fmt.Sprintf("answer %d", i))
		}
		if err := s.Append(context.Background(), testKey, turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func equalTrace(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEngine_Invoke_Greeting(t *testing.T) {
	te := newTestEngine(t, Config{})

	run := te.Process(context.Background(), request("Hi"))

	if run.Result.StatusCode != 200 {
		t.Errorf("statusCode = %d, want 200", run.Result.StatusCode)
	}
	if run.Result.Body != "Hello! How can I help?" {
		t.Errorf("body = %q", run.Result.Body)
	}
	if run.Result.Headers[api.HeaderAllowOrigin] != "*" {
		t.Errorf("headers = %v", run.Result.Headers)
	}
	if run.Result.Metadata == nil {
		t.Error("metadata must be an empty list, not nil")
	}
	if run.Outcome != OutcomeAnswered {
		t.Errorf("outcome = %q", run.Outcome)
	}

	want := []State{StateStart, StateHistoryPolicyApplied, StateGated, StateRewritten, StateAnswered, StateClassified, StateDone}
	if !equalTrace(run.Trace, want) {
		t.Errorf("trace = %v, want %v", run.Trace, want)
	}

	got := turns(t, te.store)
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0] != api.UserTurn("Hi") || got[1] != api.AssistantTurn("Hello! How can I help?") {
		t.Errorf("turns = %+v", got)
	}
}

func TestEngine_Invoke_UnsafeShortCircuits(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.gate.verdict = guardrail.Unsafe

	run := te.Process(context.Background(), request("you shitty piece of junk, answer me!"))

	if run.Result.StatusCode != 200 || run.Result.Body != RefusalBody {
		t.Errorf("result = %+v", run.Result)
	}
	if run.Outcome != OutcomeUnsafe {
		t.Errorf("outcome = %q", run.Outcome)
	}
	if te.rewriter.calls.Load() != 0 || te.answerer.calls.Load() != 0 {
		t.Errorf("rewriter/answerer must not run, got %d/%d calls", te.rewriter.calls.Load(), te.answerer.calls.Load())
	}
	if n := len(turns(t, te.store)); n != 0 {
		t.Errorf("expected no turns, got %d", n)
	}
	if run.State() != StateDone {
		t.Errorf("state = %q", run.State())
	}
}

func TestEngine_Invoke_ProfaneRewriteRefuses(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.rewriter.result = &rewriter.Result{Text: rewriter.ProfaneSentinel, Terminated: true, Profane: true}

	run := te.Process(context.Background(), request("answer me, junk"))

	if run.Result.StatusCode != 200 || run.Result.Body != RefusalBody {
		t.Errorf("result = %+v", run.Result)
	}
	if run.Outcome != OutcomeProfane {
		t.Errorf("outcome = %q", run.Outcome)
	}
	if te.answerer.calls.Load() != 0 {
		t.Error("answer engine must not run for a profane rewrite")
	}
	if n := len(turns(t, te.store)); n != 0 {
		t.Errorf("expected no turns, got %d", n)
	}
}

// scriptedProvider implements provider.Provider with a fixed reply.
type scriptedProvider struct {
	text string
	req  *provider.ProviderRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }
func (p *scriptedProvider) Complete(_ context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	p.req = req
	return &provider.ProviderResponse{Text: p.text}, nil
}

func TestEngine_Invoke_FollowUpIsRewritten(t *testing.T) {
	store := memory.New(0)
	if err := store.Append(context.Background(), testKey, api.UserTurn("what are maternity leave policy for US?")); err != nil {
		t.Fatal(err)
	}

	prov := &scriptedProvider{text: `"What is the Maternity Leave policy for PH?<stop>"`}
	rw, err := rewriter.New(prov, rewriter.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	answerer := &mockAnswerer{answer: "PH maternity leave is 105 days."}

	eng, err := New(Deps{
		Store:      store,
		Gate:       &mockGate{},
		Rewriter:   rw,
		Answerer:   answerer,
		Classifier: classifier.New(classifier.DefaultTable()),
	}, Config{})
	if err != nil {
		t.Fatal(err)
	}

	run := eng.Process(context.Background(), request("Now tell me about for PH?"))

	if run.Result.StatusCode != 200 {
		t.Fatalf("result = %+v", run.Result)
	}
	if answerer.question != "What is the Maternity Leave policy for PH" {
		t.Errorf("answer engine got %q", answerer.question)
	}
	if prov.req == nil || !strings.Contains(prov.req.Messages[0].Content, "maternity leave policy for US") {
		t.Error("rewrite prompt should carry the previous user turn")
	}

	got := turns(t, store)
	if len(got) != 3 || got[1].Content != "What is the Maternity Leave policy for PH" {
		t.Errorf("turns = %+v", got)
	}
}

func TestEngine_Invoke_ClassificationOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		outcome Outcome
		status  int
		body    string
		code    int
	}{
		{
			name:    "no context keeps body",
			answer:  "There is no specific mention of this policy.",
			outcome: OutcomeNoContext,
			status:  200,
			body:    "There is no specific mention of this policy.",
		},
		{
			name:    "refusal wins over no context",
			answer:  "I am sorry, I may not be able to answer at this time. There is no mention of it.",
			outcome: OutcomeRefused,
			status:  200,
			body:    "I am sorry, I may not be able to answer at this time. There is no mention of it.",
		},
		{
			name:    "blank answer is context unavailable",
			answer:  "  ",
			outcome: OutcomeContextUnavailable,
			status:  400,
			body:    UnavailableBody,
			code:    api.CodeContextUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t, Config{})
			te.answerer.answer = tt.answer

			run := te.Process(context.Background(), request("leave policy"))

			if run.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", run.Outcome, tt.outcome)
			}
			if run.Result.StatusCode != tt.status || run.Result.Body != tt.body {
				t.Errorf("result = %d %q", run.Result.StatusCode, run.Result.Body)
			}
			if tt.code != 0 && (run.Err == nil || run.Err.Code() != tt.code) {
				t.Errorf("err = %v, want code %d", run.Err, tt.code)
			}
			if run.State() != StateDone {
				t.Errorf("state = %q", run.State())
			}
			if n := len(turns(t, te.store)); n != 2 {
				t.Errorf("expected 2 turns appended, got %d", n)
			}
		})
	}
}

func TestEngine_Invoke_StageFailures(t *testing.T) {
	cause := errors.New("backend down")

	tests := []struct {
		name  string
		setup func(te *testEngine)
		code  int
		state State
	}{
		{
			name:  "guardrail",
			setup: func(te *testEngine) { te.gate.err = cause },
			code:  api.CodeGuardrailFailure,
			state: StateHistoryPolicyApplied,
		},
		{
			name:  "rewriter",
			setup: func(te *testEngine) { te.rewriter.err = cause },
			code:  api.CodeRewriteFailure,
			state: StateGated,
		},
		{
			name:  "rewrite empty after cleaning",
			setup: func(te *testEngine) { te.rewriter.result = &rewriter.Result{Text: "?!", Terminated: true} },
			code:  api.CodeRewriteFailure,
			state: StateGated,
		},
		{
			name:  "answer engine",
			setup: func(te *testEngine) { te.answerer.err = cause },
			code:  api.CodeAnswerEngineFailure,
			state: StateRewritten,
		},
		{
			name: "panic",
			setup: func(te *testEngine) {
				te.answerer.fn = func(context.Context, string) (string, error) { panic("boom") }
			},
			code:  api.CodeUnhandledException,
			state: StateRewritten,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t, Config{})
			tt.setup(te)

			run := te.Process(context.Background(), request("leave policy"))

			if run.Err == nil || run.Err.Code() != tt.code {
				t.Fatalf("err = %v, want code %d", run.Err, tt.code)
			}
			if run.Result.StatusCode != 400 {
				t.Errorf("statusCode = %d, want 400", run.Result.StatusCode)
			}
			wantPrefix := fmt.Sprintf("%s%d - ", ErrorBodyPrefix, tt.code)
			if !strings.HasPrefix(run.Result.Body, wantPrefix) {
				t.Errorf("body = %q, want prefix %q", run.Result.Body, wantPrefix)
			}
			if strings.Contains(run.Result.Body, "backend down") || strings.Contains(run.Result.Body, "boom") {
				t.Errorf("body leaks the cause: %q", run.Result.Body)
			}
			if run.State() != StateErrored {
				t.Errorf("state = %q", run.State())
			}
			if prev := run.Trace[len(run.Trace)-2]; prev != tt.state {
				t.Errorf("failed after %q, want %q", prev, tt.state)
			}
			if n := len(turns(t, te.store)); n != 0 {
				t.Errorf("expected no turns, got %d", n)
			}
		})
	}
}

// stalledEngine never produces a step.
type stalledEngine struct{}

func (stalledEngine) Name() string { return "stalled" }
func (stalledEngine) Close() error { return nil }
func (stalledEngine) Run(ctx context.Context, _ string, _ int) (<-chan answerengine.Step, error) {
	ch := make(chan answerengine.Step)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestEngine_Invoke_AnswerEngineTimeout(t *testing.T) {
	store := memory.New(0)
	adapter := answerengine.New(stalledEngine{}, answerengine.Config{Timeout: 20 * time.Millisecond})

	eng, err := New(Deps{
		Store:      store,
		Gate:       &mockGate{},
		Rewriter:   &mockRewriter{},
		Answerer:   adapter,
		Classifier: classifier.New(classifier.DefaultTable()),
	}, Config{})
	if err != nil {
		t.Fatal(err)
	}

	run := eng.Process(context.Background(), request("leave policy"))

	if !errors.Is(run.Err, answerengine.ErrAnswerEngineTimeout) {
		t.Fatalf("err = %v, want answer engine timeout", run.Err)
	}
	want := "Error Occurred: 1003 - Error in Answer Engine: answer engine timeout"
	if run.Result.StatusCode != 400 || !strings.HasPrefix(run.Result.Body, want) {
		t.Errorf("result = %d %q", run.Result.StatusCode, run.Result.Body)
	}
	if n := len(turns(t, store)); n != 0 {
		t.Errorf("expected no turns, got %d", n)
	}
}

func TestEngine_Invoke_PanicReleasesSessionLock(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.answerer.fn = func(context.Context, string) (string, error) { panic("boom") }
	te.Process(context.Background(), request("first"))

	te.answerer.fn = nil
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	run := te.Process(ctx, request("second"))
	if run.Result.StatusCode != 200 {
		t.Errorf("second request failed: %+v", run.Result)
	}
}

// failingAppendStore fails every Append.
type failingAppendStore struct {
	*memory.Store
}

func (s failingAppendStore) Append(context.Context, string, ...api.Turn) error {
	return errors.New("disk full")
}

func TestEngine_Invoke_AppendFailure(t *testing.T) {
	eng, err := New(Deps{
		Store:      failingAppendStore{memory.New(0)},
		Gate:       &mockGate{},
		Rewriter:   &mockRewriter{},
		Answerer:   &mockAnswerer{answer: "ok"},
		Classifier: classifier.New(classifier.DefaultTable()),
	}, Config{})
	if err != nil {
		t.Fatal(err)
	}

	run := eng.Process(context.Background(), request("leave policy"))
	if run.Err == nil || run.Err.Code() != api.CodeUnhandledException {
		t.Errorf("err = %v", run.Err)
	}
}

func TestEngine_Invoke_HistoryPolicy(t *testing.T) {
	disabled := false

	tests := []struct {
		name        string
		stored      int
		retain      *bool
		wantHistory int
		wantAfter   int
	}{
		{"retained", 4, nil, 4, 6},
		{"at limit kept", 8, nil, 8, 10},
		{"over limit cleared", 9, nil, 0, 2},
		{"disabled by caller", 4, &disabled, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t, Config{})
			seed(t, te.store, tt.stored)

			req := request("leave policy")
			req.Parameters.ConversationHistory = tt.retain
			te.Process(context.Background(), req)

			if len(te.rewriter.history) != tt.wantHistory {
				t.Errorf("rewriter saw %d turns, want %d", len(te.rewriter.history), tt.wantHistory)
			}
			if n := len(turns(t, te.store)); n != tt.wantAfter {
				t.Errorf("stored %d turns, want %d", n, tt.wantAfter)
			}
		})
	}
}

func TestEngine_Invoke_SerialisesSession(t *testing.T) {
	te := newTestEngine(t, Config{MaxTurns: 1000})

	var active, maxActive atomic.Int32
	te.answerer.fn = func(_ context.Context, q string) (string, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return "answer to " + q, nil
	}

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			te.Invoke(context.Background(), request(fmt.Sprintf("question %d", i)))
		}(i)
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("requests for one session overlapped: %d active", maxActive.Load())
	}

	got := turns(t, te.store)
	if len(got) != 2*n {
		t.Fatalf("expected %d turns, got %d", 2*n, len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != api.RoleUser || got[i+1].Role != api.RoleAssistant {
			t.Fatalf("turns interleaved at %d: %+v %+v", i, got[i], got[i+1])
		}
		if got[i+1].Content != "answer to "+got[i].Content {
			t.Errorf("pair %d mismatched: %q / %q", i/2, got[i].Content, got[i+1].Content)
		}
	}
}

func TestEngine_Invoke_AllowOrigin(t *testing.T) {
	te := newTestEngine(t, Config{AllowOrigin: "https://askgs.example.com"})
	res := te.Invoke(context.Background(), request("Hi"))
	if got := res.Headers[api.HeaderAllowOrigin]; got != "https://askgs.example.com" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestEngine_Invoke_RecordsMetrics(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.gate.verdict = guardrail.Unsafe

	before := testutil.ToFloat64(observability.PipelineOutcomesTotal.WithLabelValues(string(OutcomeUnsafe)))
	te.Invoke(context.Background(), request("bad"))
	after := testutil.ToFloat64(observability.PipelineOutcomesTotal.WithLabelValues(string(OutcomeUnsafe)))
	if after-before != 1 {
		t.Errorf("outcome counter delta = %v, want 1", after-before)
	}

	te.gate.verdict = ""
	te.gate.err = errors.New("down")
	label := fmt.Sprint(api.CodeGuardrailFailure)
	before = testutil.ToFloat64(observability.PipelineErrorsTotal.WithLabelValues(label))
	te.Invoke(context.Background(), request("q"))
	after = testutil.ToFloat64(observability.PipelineErrorsTotal.WithLabelValues(label))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}
}

func TestEngine_New_RequiresDeps(t *testing.T) {
	full := Deps{
		Store:      memory.New(0),
		Gate:       &mockGate{},
		Rewriter:   &mockRewriter{},
		Answerer:   &mockAnswerer{},
		Classifier: classifier.New(classifier.DefaultTable()),
	}
	if _, err := New(full, Config{}); err != nil {
		t.Fatalf("New with all deps: %v", err)
	}

	for name, drop := range map[string]func(d *Deps){
		"store":      func(d *Deps) { d.Store = nil },
		"gate":       func(d *Deps) { d.Gate = nil },
		"rewriter":   func(d *Deps) { d.Rewriter = nil },
		"answerer":   func(d *Deps) { d.Answerer = nil },
		"classifier": func(d *Deps) { d.Classifier = nil },
	} {
		d := full
		drop(&d)
		if _, err := New(d, Config{}); err == nil {
			t.Errorf("expected error without %s", name)
		}
	}
}

func TestEngine_Invoke_UpstreamBodyNeverReachesCaller(t *testing.T) {
	const traceback = "Traceback (most recent call last):\n" +
		"  File \"/srv/agent.py\", line 88, in run\n" +
		"    sqlite3.connect('/data/cs_latam.db?password=hunter2')\n" +
		"sqlite3.OperationalError: unable to open database file"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, traceback, http.StatusInternalServerError)
	}))
	defer upstream.Close()

	he, err := httpengine.New(httpengine.Config{URL: upstream.URL})
	if err != nil {
		t.Fatal(err)
	}
	store := memory.New(0)
	eng, err := New(Deps{
		Store:      store,
		Gate:       &mockGate{},
		Rewriter:   &mockRewriter{},
		Answerer:   answerengine.New(he, answerengine.Config{Timeout: 5 * time.Second}),
		Classifier: classifier.New(classifier.DefaultTable()),
	}, Config{})
	if err != nil {
		t.Fatal(err)
	}

	run := eng.Process(context.Background(), request("leave policy"))

	want := ErrorBodyPrefix + "1003 - Error in Answer Engine: upstream HTTP 500"
	if run.Result.Body != want {
		t.Errorf("body = %q, want %q", run.Result.Body, want)
	}
	for _, secret := range []string{"Traceback", "hunter2", "agent.py"} {
		if strings.Contains(run.Result.Body, secret) {
			t.Errorf("body leaks %q: %q", secret, run.Result.Body)
		}
	}
	// The full cause stays available for the error log.
	if run.Err == nil || !strings.Contains(run.Err.Error(), "hunter2") {
		t.Errorf("run.Err = %v, want upstream detail kept for logs", run.Err)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unknown cause", errors.New("pq: password authentication failed"), ""},
		{"attached reason", fmt.Errorf("wrap: %w", api.WithReason("upstream HTTP 502", errors.New("<html>"))), "upstream HTTP 502"},
		{"answer engine timeout", fmt.Errorf("%w: no answer within 1s", answerengine.ErrAnswerEngineTimeout), "answer engine timeout"},
		{"gateway timeout", fmt.Errorf("%w: dial tcp", provider.ErrGatewayTimeout), "gateway timeout"},
		{"non-conforming verdict", fmt.Errorf("%w: \"Maybe\"", guardrail.ErrNonConforming), "guardrail output is not Safe or Unsafe"},
		{"truncated rewrite", rewriter.ErrTruncatedRewrite, "rewrite truncated"},
		{"gateway api error", api.NewServerError("upstream said: stack trace here"), "gateway server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureReason(tt.err); got != tt.want {
				t.Errorf("failureReason = %q, want %q", got, tt.want)
			}
		})
	}
}
