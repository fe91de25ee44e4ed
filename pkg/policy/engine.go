// Package policy evaluates organizational policies against claims. A
// policy is a named, versioned list of declarative rules; custom rules call
// registered Go predicates or CEL expressions.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/observability"
)

var (
	ErrPolicyNotFound = errors.New("policy: not found")
	ErrInvalidPolicy  = errors.New("policy: invalid policy")
)

// Predicate is a custom rule check. Returning false fails the rule at its
// declared severity; an error or panic fails it at error severity.
type Predicate func(c *manifest.Claim) (bool, error)

// Engine holds policies and predicates. Registration is expected at start
// up; evaluation is safe for concurrent use.
type Engine struct {
	mu         sync.RWMutex
	policies   map[string]*Policy
	predicates map[string]Predicate
	exprs      *exprEvaluator

	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine returns an engine preloaded with Builtins.
func NewEngine(opts ...Option) (*Engine, error) {
	exprs, err := newExprEvaluator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		policies:   make(map[string]*Policy),
		predicates: make(map[string]Predicate),
		exprs:      exprs,
		logger:     slog.Default().With("component", "policy"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range Builtins() {
		if err := e.AddPolicy(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Validate checks a policy's name, version and rules.
func Validate(p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if _, err := semver.NewVersion(p.Version); err != nil {
		return fmt.Errorf("%w: %s: version %q: %v", ErrInvalidPolicy, p.Name, p.Version, err)
	}
	if p.Classification != "" && !p.Classification.Valid() {
		return fmt.Errorf("%w: %s: unknown classification %q", ErrInvalidPolicy, p.Name, p.Classification)
	}
	seen := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: %s: rule %d has no name", ErrInvalidPolicy, p.Name, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: %s: duplicate rule %q", ErrInvalidPolicy, p.Name, r.Name)
		}
		seen[r.Name] = true
		if !r.Severity.valid() {
			return fmt.Errorf("%w: %s/%s: unknown severity %q", ErrInvalidPolicy, p.Name, r.Name, r.Severity)
		}
		if err := validateRule(r); err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidPolicy, p.Name, r.Name, err)
		}
	}
	return nil
}

func validateRule(r Rule) error {
	switch r.Type {
	case RuleRequiredAssertion, RuleForbiddenAssertion:
		if r.AssertionLabel == "" {
			return errors.New("assertion_label is required")
		}
	case RuleRequiredField, RuleValueConstraint:
		if r.FieldPath == "" {
			return errors.New("field_path is required")
		}
	case RuleClassificationConstraint:
		for _, c := range r.ClassificationLevels {
			if !c.Valid() {
				return fmt.Errorf("unknown classification %q", c)
			}
		}
	case RuleCustomFunction:
		if r.CustomFunction == "" {
			return errors.New("custom_function is required")
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}

// AddPolicy validates p and installs it, replacing any policy of the same
// name.
func (e *Engine) AddPolicy(p Policy) error {
	if err := Validate(p); err != nil {
		return err
	}
	cp := p
	cp.Rules = append([]Rule(nil), p.Rules...)

	e.mu.Lock()
	prev, replaced := e.policies[p.Name]
	e.policies[p.Name] = &cp
	e.mu.Unlock()

	if replaced {
		e.logger.Debug("policy replaced", "policy", p.Name, "from", prev.Version, "to", p.Version)
	}
	return nil
}

// Policy returns a copy of the named policy.
func (e *Engine) Policy(name string) (Policy, error) {
	e.mu.RLock()
	p, ok := e.policies[name]
	e.mu.RUnlock()
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return *p, nil
}

// Policies lists installed policy names in sorted order.
func (e *Engine) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.policies))
	for n := range e.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterPredicate installs fn under name for custom_function rules.
func (e *Engine) RegisterPredicate(name string, fn Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.predicates[name] = fn
}

// RegisterExpression compiles a CEL expression over the claim's canonical
// map, bound to the variable "claim", and installs it as a predicate.
func (e *Engine) RegisterExpression(name, expr string) error {
	if _, err := e.exprs.program(expr); err != nil {
		return fmt.Errorf("policy: expression %s: %w", name, err)
	}
	e.RegisterPredicate(name, func(c *manifest.Claim) (bool, error) {
		m, err := c.ToCanonicalMap()
		if err != nil {
			return false, err
		}
		return e.exprs.eval(expr, m)
	})
	return nil
}

// Evaluate runs every enabled rule of the named policy against c. Only an
// unknown policy returns an error; rule failures become violations.
func (e *Engine) Evaluate(ctx context.Context, c *manifest.Claim, policyName string) (*Result, error) {
	e.mu.RLock()
	p, ok := e.policies[policyName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyName)
	}

	ctx, span := observability.StartSpan(ctx, "policy.evaluate", attribute.String("policy", policyName))
	defer span.End()

	res := &Result{
		PolicyName:    p.Name,
		PolicyVersion: p.Version,
		Violations:    []Violation{},
		EvaluatedAt:   e.now().UTC(),
	}
	if c == nil {
		c = &manifest.Claim{}
	}
	res.ManifestID = c.InstanceID
	for _, r := range p.Rules {
		if !r.Active() {
			continue
		}
		res.Violations = append(res.Violations, e.evaluateRule(c, r)...)
	}

	res.Passed = true
	for _, v := range res.Violations {
		if v.Severity == SeverityError {
			res.Passed = false
			break
		}
	}

	counts := make(map[string]int)
	for sev, n := range res.BySeverity() {
		counts[string(sev)] = n
	}
	e.metrics.RecordPolicyEvaluation(ctx, p.Name, res.Passed, counts)
	span.SetAttributes(attribute.Bool("passed", res.Passed), attribute.Int("violations", len(res.Violations)))
	e.logger.InfoContext(ctx, "policy evaluated",
		"policy", p.Name,
		"manifest_id", res.ManifestID,
		"passed", res.Passed,
		"violations", len(res.Violations),
	)
	return res, nil
}

// EvaluateAll runs every installed policy against c, in name order.
func (e *Engine) EvaluateAll(ctx context.Context, c *manifest.Claim) []*Result {
	names := e.Policies()
	out := make([]*Result, 0, len(names))
	for _, n := range names {
		res, err := e.Evaluate(ctx, c, n)
		if err != nil {
			continue
		}
		out = append(out, res)
	}
	return out
}
