package authz

import (
	"errors"
	"testing"

	"github.com/onexay/contentvs/internal/types"
)

func TestBuiltinRoles(t *testing.T) {
	svc, err := NewService(nil)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}

	validator := types.Actor{ID: 2, Username: "val", Roles: []string{"validator"}}
	staff := types.Actor{ID: 3, Username: "staff", Roles: []string{"Staff"}}
	member := types.Actor{ID: 4, Username: "member"}

	if !svc.Can(validator, ActionAccept) || svc.Can(validator, ActionRevoke) {
		t.Fatalf("validator should accept but not revoke")
	}
	if !svc.Can(staff, ActionAccept) || !svc.Can(staff, ActionRevoke) {
		t.Fatalf("staff should inherit validator actions and revoke")
	}
	if svc.Can(member, ActionReserve) || svc.IsStaff(member) {
		t.Fatalf("members hold no moderation capability")
	}
	if svc.Can(types.Actor{Roles: []string{"staff"}}, ActionRevoke) {
		t.Fatalf("anonymous actors hold nothing")
	}

	var forbidden *types.ForbiddenError
	if err := svc.Require(member, ActionRevoke, "staff only"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestExtraPolicyLines(t *testing.T) {
	svc, err := NewService([]string{"g, user:9, role:staff", "p, role:translator, content.download_md"})
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if !svc.Can(types.Actor{ID: 9}, ActionRevoke) {
		t.Fatalf("user grant should apply without roles on the actor")
	}
	if !svc.Can(types.Actor{ID: 10, Roles: []string{"translator"}}, ActionDownloadMD) {
		t.Fatalf("custom role should be honoured")
	}

	if _, err := NewService([]string{"x, a, b"}); err == nil {
		t.Fatalf("expected invalid policy type error")
	}
	if _, err := NewService([]string{"p, only-two"}); err == nil {
		t.Fatalf("expected invalid policy line error")
	}
}
