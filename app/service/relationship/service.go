package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/expr"
	"z3mcp/app/service/queue"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
	"github.com/samber/do"
	"github.com/samber/mo"
	"github.com/samber/oops"
)

const (
	explainInconsistent = "The relationships are contradictory."
	explainEntailed     = "The relationship is confirmed by the given facts."
	explainContradicted = "The relationship is contradicted by the given facts."
	explainUndetermined = "The relationship is possible but not confirmed by the given facts."
)

type Service struct {
	cfg      *config.Config
	engine   smt.Engine
	validate *validator.Validate
	queue    *queue.Service
}

func New(di *do.Injector) (*Service, error) {
	s := NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[smt.Engine](di),
	)
	s.queue = do.MustInvoke[*queue.Service](di)
	return s, nil
}

func NewService(cfg *config.Config, engine smt.Engine) *Service {
	return &Service{
		cfg:      cfg,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Analyze decides whether the facts entail, contradict or leave open the
// query.
func (s *Service) Analyze(ctx context.Context, q RelationshipQuery) mo.Result[*RelationshipResult] {
	start := time.Now()

	res := mo.TupleToResult(s.analyze(ctx, q))
	if res.IsError() {
		slog.Debug("Relationship query rejected", "error", res.Error())
		return res
	}

	slog.Info("Relationships analyzed",
		"query", q.Query,
		"verdict", res.MustGet().Verdict,
		"facts", len(q.Relationships),
		"took", time.Since(start),
	)

	return res
}

func (s *Service) analyze(ctx context.Context, q RelationshipQuery) (*RelationshipResult, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, oops.Code("invalid_input").Wrapf(err, "invalid relationship query")
	}

	entities, relations := domain(q.Relationships)
	if limit := s.cfg.Relationships.MaxEntities; limit > 0 && len(entities) > limit {
		return nil, oops.
			Code("invalid_input").
			With("entities", len(entities), "limit", limit).
			Errorf("too many entities: %d, the limit is %d", len(entities), limit)
	}

	properties, err := s.properties(relations, q.Properties)
	if err != nil {
		return nil, err
	}

	scope := expr.NewScope()
	scope.LimitLength(s.cfg.Solver.MaxExpressionLength)
	for _, e := range entities {
		scope.DeclareEntity(e)
	}
	for _, r := range relations {
		scope.DeclareRelation(r)
	}

	query, err := expr.CompileBool(q.Query, scope)
	if err != nil {
		return nil, oops.
			Code("parse_error").
			With("query", q.Query).
			Wrapf(err, "error parsing query '%s'", q.Query)
	}

	release, err := s.queue.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.engine.NewSession(smt.Options{Timeout: s.cfg.Solver.Timeout})
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error creating solver")
	}
	defer session.Close()

	if err = session.DeclareDomain(entities, relations); err != nil {
		return nil, err
	}

	for i, r := range q.Relationships {
		if err = session.Assert(fmt.Sprintf("fact #%d", i), fact(r)); err != nil {
			return nil, err
		}
	}

	for _, r := range relations {
		for _, p := range properties[r] {
			if err = ctx.Err(); err != nil {
				return nil, oops.Code("solver_error").Wrapf(err, "relationship analysis canceled")
			}
			label := fmt.Sprintf("%s is %s", r, p)
			if err = session.Assert(label, axiom(r, p)); err != nil {
				return nil, err
			}
		}
	}

	status, err := session.Check(ctx)
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error checking relationships")
	}

	switch status {
	case smt.StatusUnsat:
		return &RelationshipResult{
			Result:        false,
			Explanation:   explainInconsistent,
			IsSatisfiable: false,
			Verdict:       Inconsistent,
		}, nil
	case smt.StatusUnknown:
		return nil, oops.
			Code("solver_error").
			Errorf("could not decide the relationships: %s", session.ReasonUnknown())
	}

	negated, err := session.CheckAssuming(ctx, expr.Not(query))
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error evaluating query")
	}
	if negated == smt.StatusUnsat {
		return &RelationshipResult{
			Result:        true,
			Explanation:   explainEntailed,
			IsSatisfiable: true,
			Verdict:       Entailed,
		}, nil
	}

	positive, err := session.CheckAssuming(ctx, query)
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error evaluating query")
	}
	if positive == smt.StatusUnsat {
		return &RelationshipResult{
			Result:        false,
			Explanation:   explainContradicted,
			IsSatisfiable: true,
			Verdict:       Contradicted,
		}, nil
	}

	return &RelationshipResult{
		Result:        false,
		Explanation:   explainUndetermined,
		IsSatisfiable: true,
		Verdict:       Undetermined,
	}, nil
}

// domain collects the entity and relation names mentioned by the facts,
// sorted for deterministic solver input.
func domain(facts []Relationship) (entities, relations []string) {
	for _, r := range facts {
		entities = append(entities, r.Person1, r.Person2)
		relations = append(relations, r.Relation)
	}
	return pie.Sort(pie.Unique(entities)), pie.Sort(pie.Unique(relations))
}

// properties merges the configured defaults with the per-query axioms for
// every relation in use.
func (s *Service) properties(relations []string, extra map[string][]Property) (map[string][]Property, error) {
	result := make(map[string][]Property)

	for _, r := range relations {
		if pie.Contains(s.cfg.Relationships.Symmetric, r) {
			result[r] = append(result[r], Symmetric)
		}
		if pie.Contains(s.cfg.Relationships.Transitive, r) {
			result[r] = append(result[r], Transitive)
		}
	}

	for r, props := range extra {
		for _, p := range props {
			if !pie.Contains(Properties, p) {
				return nil, oops.
					Code("invalid_input").
					With("relation", r).
					Errorf("unknown relation property %q, must be one of: %v", p, Properties)
			}
		}
		if !pie.Contains(relations, r) {
			continue
		}
		for _, p := range props {
			if !pie.Contains(result[r], p) {
				result[r] = append(result[r], p)
			}
		}
	}

	return result, nil
}

func fact(r Relationship) *expr.Expr {
	atom := expr.Apply(r.Relation, expr.Entity(r.Person1), expr.Entity(r.Person2))
	if r.Holds() {
		return atom
	}
	return expr.Not(atom)
}

// axiom states a relation property over the whole entity domain.
func axiom(relation string, p Property) *expr.Expr {
	a := expr.Var("e!a", expr.SortEntity)
	b := expr.Var("e!b", expr.SortEntity)
	c := expr.Var("e!c", expr.SortEntity)
	rel := func(x, y *expr.Expr) *expr.Expr {
		return expr.Apply(relation, x, y)
	}

	switch p {
	case Reflexive:
		return expr.ForAll([]*expr.Expr{a}, rel(a, a))
	case Irreflexive:
		return expr.ForAll([]*expr.Expr{a}, expr.Not(rel(a, a)))
	case Symmetric:
		return expr.ForAll([]*expr.Expr{a, b}, expr.Implies(rel(a, b), rel(b, a)))
	case Asymmetric:
		return expr.ForAll([]*expr.Expr{a, b}, expr.Implies(rel(a, b), expr.Not(rel(b, a))))
	case Transitive:
		return expr.ForAll([]*expr.Expr{a, b, c}, expr.Implies(expr.And(rel(a, b), rel(b, c)), rel(a, c)))
	}
	return expr.Bool(true)
}
