package middleware

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
)

var Module = fx.Module("rbac", fx.Provide(NewEnforcer))

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// NewEnforcer builds the in-memory RBAC enforcer. Roles form a chain:
// super_admin inherits admin, admin inherits user.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{"user", "tickets", "read"},
		{"admin", "tickets", "write"},
		{"admin", "revocations", "write"},
		{"admin", "reconcile", "run"},
		{"admin", "botscan", "run"},
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, err
	}

	groupings := [][]string{
		{"admin", "user"},
		{"super_admin", "admin"},
	}
	if _, err := e.AddGroupingPolicies(groupings); err != nil {
		return nil, err
	}

	return e, nil
}
