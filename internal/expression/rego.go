package expression

import (
	"context"
	"errors"

	"github.com/open-policy-agent/opa/rego"
)

// Rego treats each rule as a Rego query over input, e.g.
//
//	input.identity.authorities[_] == "ROLE_ADMIN"
//
// The query is prepared when compiled, so syntax and safety errors surface at
// startup.
type Rego struct{}

func NewRego() *Rego { return &Rego{} }

func (r *Rego) Compile(src string, vars []string) (Expression, error) {
	prepared, err := rego.New(
		rego.Query(src),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, err
	}
	return &regoQuery{src: src, query: prepared}, nil
}

type regoQuery struct {
	src   string
	query rego.PreparedEvalQuery
}

func (q *regoQuery) String() string { return q.src }

func (q *regoQuery) Evaluate(ctx context.Context, root *Root) (bool, error) {
	if root == nil {
		return false, errors.New("expression root is nil")
	}
	results, err := q.query.Eval(ctx, rego.EvalInput(regoInput(root)))
	if err != nil {
		return false, err
	}
	for _, res := range results {
		if allTrue(res) {
			return true, nil
		}
	}
	return false, nil
}

func allTrue(res rego.Result) bool {
	if len(res.Expressions) == 0 {
		return false
	}
	for _, e := range res.Expressions {
		if b, ok := e.Value.(bool); !ok || !b {
			return false
		}
	}
	return true
}

func regoInput(root *Root) map[string]any {
	id := root.Identity
	authorities := id.AuthorityStrings()
	if authorities == nil {
		authorities = []string{}
	}
	args := root.Args
	if args == nil {
		args = map[string]any{}
	}
	return map[string]any{
		"identity": map[string]any{
			"principal":     id.Name(),
			"authorities":   authorities,
			"authenticated": root.Trust.IsAuthenticated(id),
			"anonymous":     root.Trust.IsAnonymous(id),
		},
		"method":       root.Method,
		"args":         args,
		"returnObject": root.ReturnObject,
		"filterObject": root.FilterObject,
		"rolePrefix":   root.RolePrefix,
	}
}
