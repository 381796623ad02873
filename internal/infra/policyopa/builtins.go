package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the closed set of builtins an admission bundle may
// call. Everything here is a pure function of its arguments; payload
// shape checks need type predicates and regex, nothing needs time,
// network, or randomness.
var allowedBuiltins = map[string]struct{}{
	"abs":            {},
	"ceil":           {},
	"concat":         {},
	"contains":       {},
	"count":          {},
	"eq":             {},
	"equal":          {},
	"endswith":       {},
	"floor":          {},
	"format_int":     {},
	"format_number":  {},
	"is_array":       {},
	"is_boolean":     {},
	"is_null":        {},
	"is_number":      {},
	"is_object":      {},
	"is_string":      {},
	"json.marshal":   {},
	"json.unmarshal": {},
	"lower":          {},
	"max":            {},
	"min":            {},
	"neq":            {},
	"object.get":     {},
	"object.keys":    {},
	"object.remove":  {},
	"object.union":   {},
	"pow":            {},
	"regex.match":    {},
	"replace":        {},
	"round":          {},
	"sort":           {},
	"split":          {},
	"sprintf":        {},
	"startswith":     {},
	"substring":      {},
	"sum":            {},
	"trim":           {},
	"trim_left":      {},
	"trim_right":     {},
	"upper":          {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
