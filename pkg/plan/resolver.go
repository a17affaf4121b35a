package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/helm-actions/pkg/catalog"
	"github.com/Mindburn-Labs/helm-actions/pkg/coercion"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// QueryTypeID is the parameter type resolved by the query compiler rather
// than by the coercion registry.
const QueryTypeID = "query"

// ResolutionContext holds the read-only collaborators of a resolution.
// Schema is optional; without it queries are shape-checked and compiled but
// table and column references are not verified.
type ResolutionContext struct {
	Actions   catalog.ActionCatalog
	Coercions coercion.Lookup
	Schema    *query.SchemaCatalog
	Dialect   query.Dialect
}

// Resolver resolves plans against a fixed context. It holds no mutable
// state and may be shared between goroutines.
type Resolver struct {
	rc ResolutionContext
}

// NewResolver returns a Resolver for rc. A nil Coercions lookup behaves as
// an empty registry.
func NewResolver(rc ResolutionContext) *Resolver {
	if rc.Coercions == nil {
		rc.Coercions = coercion.Empty()
	}
	return &Resolver{rc: rc}
}

// Resolve resolves raw against rc. See Resolver.Resolve.
func Resolve(raw *RawPlan, rc ResolutionContext) (*ResolvedPlan, error) {
	return NewResolver(rc).Resolve(raw)
}

// ResolveWithCatalog resolves raw with the builtin coercions and no schema
// catalog, rendering queries as ANSI.
//
// Deprecated: use Resolve with a ResolutionContext.
func ResolveWithCatalog(raw *RawPlan, actions catalog.ActionCatalog) (*ResolvedPlan, error) {
	return Resolve(raw, ResolutionContext{Actions: actions, Coercions: coercion.Default()})
}

// Resolve returns one resolved step per raw step, in order. The only errors
// are ErrNilPlan and ErrNilCatalog.
func (r *Resolver) Resolve(raw *RawPlan) (*ResolvedPlan, error) {
	if raw == nil {
		return nil, ErrNilPlan
	}
	if r.rc.Actions == nil {
		return nil, ErrNilCatalog
	}
	out := &ResolvedPlan{Steps: make([]ResolvedStep, len(raw.Steps))}
	for i, step := range raw.Steps {
		out.Steps[i] = r.resolveStep(i, step)
	}
	return out, nil
}

func (r *Resolver) resolveStep(index int, step RawPlanStep) ResolvedStep {
	desc, ok := r.rc.Actions.FindDescriptor(step.ActionID)
	if !ok {
		return &ErrorStep{
			Index:    index,
			ActionID: step.ActionID,
			Kind:     UnknownAction,
			Message:  "Unknown steps: " + step.ActionID,
		}
	}

	if msg, ok := checkArity(desc, step.Parameters); !ok {
		return &ErrorStep{Index: index, ActionID: step.ActionID, Kind: ArityMismatch, Message: msg}
	}

	params := make(map[string]any, len(desc.Parameters))
	for _, p := range desc.Parameters {
		value, failure := r.bind(p, step.Parameters[p.Name])
		if failure != nil {
			failure.Index = index
			failure.ActionID = step.ActionID
			failure.Parameter = p.Name
			return failure
		}
		params[p.Name] = value
	}
	return &BoundStep{Index: index, ActionID: step.ActionID, Parameters: params}
}

func (r *Resolver) bind(p catalog.ParameterDescriptor, raw any) (any, *ErrorStep) {
	if p.TypeID == QueryTypeID {
		return r.bindQuery(raw)
	}
	handler, ok := r.rc.Coercions.Lookup(p.TypeID)
	if !ok {
		return nil, &ErrorStep{
			Kind:    UnsupportedType,
			Message: fmt.Sprintf("no coercion registered for type %q of parameter %q", p.TypeID, p.Name),
		}
	}
	value, err := handler(raw)
	if err != nil {
		return nil, &ErrorStep{Kind: TypeConversion, Message: err.Error()}
	}
	return value, nil
}

func (r *Resolver) bindQuery(raw any) (any, *ErrorStep) {
	q, err := query.Decode(raw)
	if err != nil {
		return nil, queryFailure(err)
	}
	compiled, err := query.CompileQuery(q, r.rc.Dialect, r.rc.Schema)
	if err != nil {
		return nil, queryFailure(err)
	}
	return compiled, nil
}

func queryFailure(err error) *ErrorStep {
	step := &ErrorStep{Kind: QueryValidation, Message: err.Error()}
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		step.Code = verr.Code
	}
	return step
}

// checkArity requires the supplied names to equal the declared names.
func checkArity(desc catalog.ActionDescriptor, supplied map[string]any) (string, bool) {
	declared := make(map[string]struct{}, len(desc.Parameters))
	for _, p := range desc.Parameters {
		declared[p.Name] = struct{}{}
	}
	var missing, unexpected []string
	for name := range declared {
		if _, ok := supplied[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return "", true
	}
	sort.Strings(missing)
	sort.Strings(unexpected)

	expected := desc.ParameterNames()
	sort.Strings(expected)
	got := make([]string, 0, len(supplied))
	for name := range supplied {
		got = append(got, name)
	}
	sort.Strings(got)

	var b strings.Builder
	fmt.Fprintf(&b, "action %q expects parameters [%s], got [%s]",
		desc.ID, strings.Join(expected, ", "), strings.Join(got, ", "))
	if len(missing) > 0 {
		fmt.Fprintf(&b, "; missing [%s]", strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		fmt.Fprintf(&b, "; unexpected [%s]", strings.Join(unexpected, ", "))
	}
	return b.String(), false
}
