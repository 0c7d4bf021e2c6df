package user

import "testing"

func TestCreateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr string
	}{
		{name: "valid", req: CreateRequest{Email: "a@b.com", Name: "A", Role: RoleMember}},
		{name: "missing email", req: CreateRequest{Name: "A", Role: RoleAdmin}, wantErr: "email is required"},
		{name: "invalid email", req: CreateRequest{Email: "bad", Name: "A", Role: RoleAdmin}, wantErr: "invalid email format"},
		{name: "missing name", req: CreateRequest{Email: "a@b.com", Role: RoleAdmin}, wantErr: "name is required"},
		{name: "invalid role", req: CreateRequest{Email: "a@b.com", Name: "A", Role: "superadmin"}, wantErr: "invalid role: must be member, manager, or admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if got := err.Error(); got != tt.wantErr {
				t.Fatalf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestUpdateRequest_Validate(t *testing.T) {
	empty := ""
	name := "Bea"
	bad := Role("owner")
	mgr := RoleManager

	tests := []struct {
		name    string
		req     UpdateRequest
		wantErr bool
	}{
		{name: "no fields", req: UpdateRequest{}},
		{name: "rename", req: UpdateRequest{Name: &name}},
		{name: "promote", req: UpdateRequest{Role: &mgr}},
		{name: "empty name", req: UpdateRequest{Name: &empty}, wantErr: true},
		{name: "unknown role", req: UpdateRequest{Role: &bad}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrincipalClassification(t *testing.T) {
	tests := []struct {
		role       Role
		admin      bool
		manager    bool
		member     bool
		privileged bool
	}{
		{RoleAdmin, true, false, false, true},
		{RoleManager, false, true, false, true},
		{RoleMember, false, false, true, false},
		{"", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := Principal{ID: "u1", Role: tt.role}
			if p.IsAdmin() != tt.admin {
				t.Errorf("IsAdmin() = %v", p.IsAdmin())
			}
			if p.IsManager() != tt.manager {
				t.Errorf("IsManager() = %v", p.IsManager())
			}
			if p.IsMember() != tt.member {
				t.Errorf("IsMember() = %v", p.IsMember())
			}
			if p.IsPrivileged() != tt.privileged {
				t.Errorf("IsPrivileged() = %v", p.IsPrivileged())
			}
		})
	}
}

func TestPrincipalIs(t *testing.T) {
	p := Principal{ID: "u7", Role: RoleMember}
	if !p.Is("u7") {
		t.Error("expected principal to match its own id")
	}
	if p.Is("u8") {
		t.Error("expected no match for another id")
	}
	if (Principal{}).Is("") {
		t.Error("empty ids must never match")
	}
}

func TestTokenClaimsPrincipal(t *testing.T) {
	c := TokenClaims{UserID: "u1", Role: RoleManager, OrgID: "org-1"}
	got := c.Principal()
	want := Principal{ID: "u1", Role: RoleManager, OrgID: "org-1"}
	if got != want {
		t.Errorf("Principal() = %+v, want %+v", got, want)
	}
}
