package policy

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/codemode/toolgateway/internal/model"
)

// matchConditions reports whether every ArgCondition on the rule holds
// against argsJSON (conditions are AND-combined).
func matchConditions(conds []model.ArgCondition, argsJSON string) bool {
	for _, c := range conds {
		if !matchOne(c, argsJSON) {
			return false
		}
	}
	return true
}

func matchOne(c model.ArgCondition, argsJSON string) bool {
	res := gjson.Get(argsJSON, c.Path)
	actual := res.String()
	switch c.Op {
	case model.CondEquals:
		return res.Exists() && actual == c.Value
	case model.CondNotEquals:
		return !res.Exists() || actual != c.Value
	case model.CondContains:
		return res.Exists() && strings.Contains(actual, c.Value)
	case model.CondStartsWith:
		return res.Exists() && strings.HasPrefix(actual, c.Value)
	default:
		return false
	}
}
