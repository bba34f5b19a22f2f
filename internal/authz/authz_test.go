package authz

import (
	"testing"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

var (
	plainUser = models.User{ID: "u1", Role: models.RoleUser}
	moderator = models.User{ID: "m1", Role: models.RoleModerator}
	admin     = models.User{ID: "a1", Role: models.RoleAdmin}
	superuser = models.User{ID: "s1", Role: models.RoleUser, Superuser: true}
)

func TestAccountRealmIsAdminOnly(t *testing.T) {
	cases := []struct {
		name    string
		user    models.User
		allowed bool
	}{
		{name: "plain user", user: plainUser, allowed: false},
		{name: "moderator", user: moderator, allowed: false},
		{name: "admin", user: admin, allowed: true},
		{name: "superuser", user: superuser, allowed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(RealmAccounts, tc.user); got.Allowed != tc.allowed {
				t.Fatalf("CanRead: got %v, want %v", got.Allowed, tc.allowed)
			}
			if got := CanWrite(RealmAccounts, tc.user, ""); got.Allowed != tc.allowed {
				t.Fatalf("CanWrite: got %v, want %v", got.Allowed, tc.allowed)
			}
		})
	}
}

func TestCatalogWritesRequireAdmin(t *testing.T) {
	if got := CanWrite(RealmCatalog, moderator, ""); got.Allowed {
		t.Fatalf("moderators must not write the catalog")
	}
	if got := CanWrite(RealmCatalog, admin, ""); !got.Allowed {
		t.Fatalf("administrators must write the catalog")
	}
	if got := CanRead(RealmCatalog, plainUser); !got.Allowed {
		t.Fatalf("catalog reads are open")
	}
}

func TestContentWritesAllowAuthorAndStaff(t *testing.T) {
	cases := []struct {
		name    string
		user    models.User
		ownerID string
		allowed bool
	}{
		{name: "author edits own", user: plainUser, ownerID: plainUser.ID, allowed: true},
		{name: "stranger denied", user: plainUser, ownerID: "someone-else", allowed: false},
		{name: "moderator edits any", user: moderator, ownerID: "someone-else", allowed: true},
		{name: "admin edits any", user: admin, ownerID: "someone-else", allowed: true},
		{name: "superuser edits any", user: superuser, ownerID: "someone-else", allowed: true},
		{name: "creation has no owner", user: plainUser, ownerID: "", allowed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanWrite(RealmContent, tc.user, tc.ownerID)
			if got.Allowed != tc.allowed {
				t.Fatalf("got %v, want %v", got.Allowed, tc.allowed)
			}
			if !tc.allowed && got.Reason == "" {
				t.Fatalf("denial must carry a reason")
			}
		})
	}
}

func TestDenialReasonsDiffer(t *testing.T) {
	adminDenial := CanWrite(RealmCatalog, plainUser, "")
	ownerDenial := CanWrite(RealmContent, plainUser, "someone-else")
	if adminDenial.Reason == ownerDenial.Reason {
		t.Fatalf("expected distinct denial reasons, both were %q", adminDenial.Reason)
	}
}
