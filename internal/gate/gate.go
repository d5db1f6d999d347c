// Package gate orchestrates one rewrite request: it validates input, asks the
// entitlement service whether the caller may spend a rewrite, runs inference,
// and reconciles both outcomes into one response or one classified error.
//
// A request moves through VALIDATING, GATING, DISPATCHED and RECONCILING and
// ends in SUCCEEDED or FAILED. The entitlement check and inference are either
// raced (StrategyConcurrent) or chained (StrategySequential); reconciliation is
// the same for both and applies a fixed precedence:
//
//	deadline exceeded > entitlement denial > plan gate > inference outcome
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/tonegate/internal/entitlement"
	"github.com/straja-ai/tonegate/internal/inference"
	"github.com/straja-ai/tonegate/internal/persona"
	"github.com/straja-ai/tonegate/internal/redact"
	"github.com/straja-ai/tonegate/internal/rewrite"
)

// Strategy selects how the entitlement check and inference are dispatched.
type Strategy string

const (
	// StrategyConcurrent starts both calls together and waits for both.
	// Latency is max(entitlement, inference); inference is paid for even
	// when the caller turns out to be denied.
	StrategyConcurrent Strategy = "concurrent"
	// StrategySequential runs inference only after the caller is allowed
	// and passes plan gating. Latency is entitlement + inference.
	StrategySequential Strategy = "sequential"
)

// ParseStrategy parses a configured strategy name. Empty means concurrent.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyConcurrent:
		return StrategyConcurrent, nil
	case StrategySequential:
		return StrategySequential, nil
	default:
		return "", fmt.Errorf("unknown gate strategy %q (want concurrent or sequential)", s)
	}
}

// State is a step of the request state machine.
type State string

const (
	StateValidating  State = "VALIDATING"
	StateGating      State = "GATING"
	StateDispatched  State = "DISPATCHED"
	StateReconciling State = "RECONCILING"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

// Request is one inbound rewrite request.
type Request struct {
	RequestID   string
	DraftText   string
	ContextText string
	PersonaID   string
	// AuthToken is opaque and forwarded verbatim to the entitlement service.
	AuthToken string
}

// Outcome summarizes a finished request for logging, metrics and audit. It
// never contains draft or context text.
type Outcome struct {
	RequestID string
	Persona   string
	Strategy  Strategy
	State     State
	// LastState is the last non-terminal state reached.
	LastState       State
	Kind            Kind
	Status          int
	Plan            string
	InferenceCalled bool
	Timings         inference.Timings
}

// Gate is the request orchestrator. It is safe for concurrent use.
type Gate struct {
	personas     *persona.Registry
	entitlements entitlement.Checker
	rewriter     rewrite.Rewriter
	strategy     Strategy
	timeout      time.Duration
	logger       *zap.Logger
	observe      func(Outcome)
}

// Option configures a Gate.
type Option func(*Gate)

// WithStrategy sets the dispatch strategy.
func WithStrategy(s Strategy) Option {
	return func(g *Gate) { g.strategy = s }
}

// WithRequestTimeout bounds the whole request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithLogger sets the logger used for internal failures.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers a callback invoked once per finished request.
func WithObserver(fn func(Outcome)) Option {
	return func(g *Gate) { g.observe = fn }
}

// New builds a Gate. Missing collaborators are a configuration error.
func New(personas *persona.Registry, checker entitlement.Checker, rewriter rewrite.Rewriter, opts ...Option) (*Gate, error) {
	if personas == nil {
		return nil, misconfigured(errors.New("persona registry is nil"))
	}
	if checker == nil {
		return nil, misconfigured(errors.New("entitlement checker is nil"))
	}
	if rewriter == nil {
		return nil, misconfigured(errors.New("rewriter is nil"))
	}
	g := &Gate{
		personas:     personas,
		entitlements: checker,
		rewriter:     rewriter,
		strategy:     StrategyConcurrent,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if _, err := ParseStrategy(string(g.strategy)); err != nil {
		return nil, misconfigured(err)
	}
	return g, nil
}

// Strategy returns the configured dispatch strategy.
func (g *Gate) Strategy() Strategy { return g.strategy }

// Personas returns the registry the gate resolves personas from.
func (g *Gate) Personas() *persona.Registry { return g.personas }

// dispatch holds the raw results of the collaborator calls. Each field is
// written by exactly one goroutine.
type dispatch struct {
	verdict         entitlement.Verdict
	result          inference.RewriteResult
	inferErr        error
	inferenceCalled bool
	entitlementTook time.Duration
	inferenceTook   time.Duration
}

// Run processes one request. The returned error, when non-nil, is a *Error.
func (g *Gate) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	out := Outcome{RequestID: req.RequestID, Strategy: g.strategy}

	resp, err := g.run(ctx, req, &out)

	out.Timings.Total = time.Since(start)
	if err != nil {
		gerr := AsError(err)
		out.State = StateFailed
		out.Kind = gerr.Kind
		out.Status = gerr.Status
		err = gerr
	} else {
		out.State = StateSucceeded
		out.Status = http.StatusOK
	}
	if g.observe != nil {
		g.observe(out)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *Gate) run(ctx context.Context, req Request, out *Outcome) (*Response, error) {
	out.LastState = StateValidating
	if err := validate(req); err != nil {
		return nil, err
	}

	out.LastState = StateGating
	p := g.personas.Resolve(req.PersonaID)
	out.Persona = p.ID

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out.LastState = StateDispatched
	var d dispatch
	if g.strategy == StrategySequential {
		d = g.runSequential(ctx, p, req)
	} else {
		d = g.runConcurrent(ctx, p, req)
	}

	out.LastState = StateReconciling
	out.Plan = d.verdict.Plan
	out.InferenceCalled = d.inferenceCalled
	out.Timings.Entitlement = d.entitlementTook
	out.Timings.Inference = d.inferenceTook

	return g.reconcile(ctx, p, d)
}

func validate(req Request) error {
	if strings.TrimSpace(req.DraftText) == "" {
		return newError(KindInvalidInput, http.StatusBadRequest, "draftText is required")
	}
	if strings.TrimSpace(req.AuthToken) == "" {
		return newError(KindMissingCredential, http.StatusUnauthorized, "authorization credential is required")
	}
	return nil
}

func (g *Gate) runConcurrent(ctx context.Context, p persona.Persona, req Request) dispatch {
	var (
		d  dispatch
		eg errgroup.Group
	)
	// Neither call returns an error to the group, so one failing never
	// cancels the other; Wait returns once both are done.
	eg.Go(func() error {
		t := time.Now()
		d.verdict = g.entitlements.Check(ctx, req.AuthToken)
		d.entitlementTook = time.Since(t)
		return nil
	})
	eg.Go(func() error {
		t := time.Now()
		d.inferenceCalled = true
		d.result, d.inferErr = g.rewriter.Rewrite(ctx, p, req.DraftText, req.ContextText)
		d.inferenceTook = time.Since(t)
		return nil
	})
	_ = eg.Wait()
	return d
}

func (g *Gate) runSequential(ctx context.Context, p persona.Persona, req Request) dispatch {
	var d dispatch
	t := time.Now()
	d.verdict = g.entitlements.Check(ctx, req.AuthToken)
	d.entitlementTook = time.Since(t)

	if authorize(d.verdict, p) != nil || ctx.Err() != nil {
		return d
	}

	t = time.Now()
	d.inferenceCalled = true
	d.result, d.inferErr = g.rewriter.Rewrite(ctx, p, req.DraftText, req.ContextText)
	d.inferenceTook = time.Since(t)
	return d
}

// reconcile turns the dispatch results into the final answer. It is the only
// place that decides precedence and is shared by both strategies.
func (g *Gate) reconcile(ctx context.Context, p persona.Persona, d dispatch) (*Response, error) {
	if ctx.Err() != nil && cutShort(d, p) {
		return nil, &Error{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: msgTimeout, Err: ctx.Err()}
	}

	if err := authorize(d.verdict, p); err != nil {
		if d.verdict.Err != nil {
			g.logger.Warn("entitlement service unavailable", zap.String("error", redact.String(d.verdict.Err.Error())))
		}
		return nil, err
	}

	if !d.inferenceCalled {
		return nil, AsError(errors.New("inference was not dispatched for an authorized request"))
	}
	if d.inferErr != nil {
		return nil, g.inferenceError(d.inferErr)
	}

	resp := Assemble(d.result, d.verdict)
	return &resp, nil
}

// cutShort reports whether a collaborator call was abandoned because the
// request context ended.
func cutShort(d dispatch, p persona.Persona) bool {
	if isContextErr(d.verdict.Err) {
		return true
	}
	if d.inferenceCalled && isContextErr(d.inferErr) {
		return true
	}
	// Sequential dispatch that stopped after an authorizing verdict. A plan
	// gate is a final answer and is not overridden by the deadline.
	return !d.inferenceCalled && authorize(d.verdict, p) == nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// authorize applies entitlement denial and then plan gating.
func authorize(v entitlement.Verdict, p persona.Persona) error {
	if !v.Allowed {
		reason := v.Reason
		if reason == "" {
			reason = entitlement.ReasonDenied
		}
		status := v.Status
		if status == 0 || status == http.StatusOK {
			status = http.StatusForbidden
		}
		return &Error{Kind: kindForStatus(status), Status: status, Message: reason, Err: v.Err}
	}
	if !p.Allows(persona.ParsePlan(v.Plan)) {
		return &Error{
			Kind:            KindPlanUpgradeRequired,
			Status:          http.StatusForbidden,
			Message:         fmt.Sprintf("persona %q requires the %s plan", p.ID, p.MinimumPlan),
			UpgradeRequired: true,
		}
	}
	return nil
}

func (g *Gate) inferenceError(err error) error {
	var rerr *rewrite.Error
	if errors.As(err, &rerr) && rerr.Kind == rewrite.KindParse {
		g.logger.Error("inference returned malformed output", zap.String("error", redact.String(err.Error())))
		return &Error{Kind: KindBackendContractViolation, Status: http.StatusInternalServerError, Message: msgProcessingFailed, Err: err}
	}
	g.logger.Warn("inference failed", zap.String("error", redact.String(err.Error())))
	return &Error{Kind: KindUpstreamUnavailable, Status: http.StatusBadGateway, Message: msgInferenceUnavailable, Err: err}
}

func misconfigured(err error) *Error {
	return &Error{Kind: KindInternalMisconfiguration, Status: http.StatusInternalServerError, Message: msgMisconfigured, Err: err}
}
