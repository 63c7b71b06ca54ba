// Package authz decides which staff capabilities an actor holds.
package authz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"

	"github.com/onexay/contentvs/internal/types"
)

const rolePrefix = "role:"

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && (r.act == p.act || p.act == "*")
`

// Capabilities checked by the content engine.
const (
	ActionReserve    = "validation.reserve"
	ActionAccept     = "validation.accept"
	ActionReject     = "validation.reject"
	ActionRevoke     = "validation.revoke"
	ActionViewDraft  = "content.view_any"
	ActionDownloadMD = "content.download_md"
	ActionDeleteAny  = "content.delete_any"
)

// Built-in roles.
const (
	RoleValidator = "validator"
	RoleStaff     = "staff"
)

// RoleSeed is a built-in role with its policies.
type RoleSeed struct {
	Role     string
	Inherits []string
	Actions  []string
}

// BuiltinRoleSeeds returns the role matrix loaded at startup.
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role:    RoleValidator,
			Actions: []string{ActionReserve, ActionAccept, ActionReject, ActionViewDraft},
		},
		{
			Role:     RoleStaff,
			Inherits: []string{RoleValidator},
			Actions:  []string{ActionRevoke, ActionDownloadMD, ActionDeleteAny},
		},
	}
}

// Service wraps a casbin enforcer holding the role policies in memory.
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService loads the built-in roles plus extra policy lines written as
// "p, role:name, action" or "g, user:42, role:staff".
func NewService(extra []string) (*Service, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}

	for _, seed := range BuiltinRoleSeeds() {
		for _, action := range seed.Actions {
			if _, err := enforcer.AddPolicy(rolePrefix+seed.Role, action); err != nil {
				return nil, fmt.Errorf("seed role %s: %w", seed.Role, err)
			}
		}
		for _, parent := range seed.Inherits {
			if _, err := enforcer.AddGroupingPolicy(rolePrefix+seed.Role, rolePrefix+parent); err != nil {
				return nil, fmt.Errorf("seed role %s: %w", seed.Role, err)
			}
		}
	}

	for _, line := range extra {
		if err := addPolicyLine(enforcer, line); err != nil {
			return nil, err
		}
	}
	return &Service{enforcer: enforcer}, nil
}

func addPolicyLine(enforcer *casbin.SyncedEnforcer, line string) error {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) != 3 {
		return fmt.Errorf("invalid policy line %q", line)
	}
	var err error
	switch fields[0] {
	case "p":
		_, err = enforcer.AddPolicy(fields[1], fields[2])
	case "g":
		_, err = enforcer.AddGroupingPolicy(fields[1], fields[2])
	default:
		return fmt.Errorf("invalid policy type in %q", line)
	}
	return err
}

// SubjectForUser is the casbin subject of a user id.
func SubjectForUser(id uint) string {
	return "user:" + strconv.FormatUint(uint64(id), 10)
}

// Can reports whether the actor, through a role or a user grant, holds action.
func (s *Service) Can(actor types.Actor, action string) bool {
	if s == nil || s.enforcer == nil || actor.IsAnonymous() {
		return false
	}
	subjects := []string{SubjectForUser(actor.ID)}
	for _, role := range actor.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			subjects = append(subjects, rolePrefix+role)
		}
	}
	for _, sub := range subjects {
		ok, err := s.enforcer.Enforce(sub, action)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Require returns a Forbidden error when the actor lacks action.
func (s *Service) Require(actor types.Actor, action, reason string) error {
	if s.Can(actor, action) {
		return nil
	}
	return &types.ForbiddenError{Action: action, Reason: reason}
}

// IsStaff reports whether the actor may moderate contents.
func (s *Service) IsStaff(actor types.Actor) bool {
	return s.Can(actor, ActionViewDraft)
}
