package authz

import "testing"

func TestNewRegistryRejectsInvalidCodes(t *testing.T) {
	_, err := NewRegistry([]RoleDefinition{
		{Name: "broken", Permissions: []string{"Users:Read"}},
	})
	if err == nil {
		t.Fatalf("expected invalid code error")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]RoleDefinition{
		{Name: "user", Permissions: []string{PermProfileRead}},
		{Name: "User", Permissions: []string{PermProfileRead}},
	})
	if err == nil {
		t.Fatalf("expected duplicate role error")
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry, err := NewRegistry(DefaultRoles())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	perms := registry.Permissions("Manager")
	if len(perms) == 0 {
		t.Fatalf("expected manager permissions")
	}
	if registry.Permissions("ghost") != nil {
		t.Fatalf("unknown role should have no permissions")
	}
}

func TestPermissionsReturnsCopy(t *testing.T) {
	registry, err := NewRegistry(DefaultRoles())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	perms := registry.Permissions("user")
	perms[0] = "tampered:grant"
	again := registry.Permissions("user")
	if again[0] == "tampered:grant" {
		t.Fatalf("registry leaked internal slice")
	}
}
