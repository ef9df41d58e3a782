package domain

import "testing"

func TestRoleSetHas(t *testing.T) {
	tests := []struct {
		name  string
		roles RoleSet
		cap   Capability
		want  bool
	}{
		{name: "empty set subscribes", roles: nil, cap: CapSubscribe, want: true},
		{name: "empty set cannot submit", roles: nil, cap: CapSubmit, want: false},
		{name: "submitter submits", roles: RoleSet{RoleSubmitter}, cap: CapSubmit, want: true},
		{name: "submitter cannot moderate", roles: RoleSet{RoleSubmitter}, cap: CapModerate, want: false},
		{name: "admin moderates", roles: RoleSet{RoleAdmin}, cap: CapModerate, want: true},
		{name: "admin configures", roles: RoleSet{RoleSubscriber, RoleAdmin}, cap: CapConfigure, want: true},
		{name: "unknown role ignored", roles: RoleSet{"root"}, cap: CapModerate, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.roles.Has(tt.cap); got != tt.want {
				t.Fatalf("RoleSet(%v).Has(%v) = %v, want %v", tt.roles, tt.cap, got, tt.want)
			}
		})
	}
}

func TestRoleSetNormalize(t *testing.T) {
	got := RoleSet{RoleSubscriber, "unknown", RoleAdmin, RoleSubscriber}.Normalize()
	if len(got) != 2 || got[0] != RoleAdmin || got[1] != RoleSubscriber {
		t.Fatalf("неожиданный набор ролей: %v", got)
	}
}

func TestParseRole(t *testing.T) {
	if role, ok := ParseRole(" Admin "); !ok || role != RoleAdmin {
		t.Fatalf("ожидали admin, получили %q %v", role, ok)
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("неизвестная роль не должна разбираться")
	}
}
