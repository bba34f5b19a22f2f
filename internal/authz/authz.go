// Package authz centralises the role checks the HTTP handlers apply before
// touching the datastore. Handlers authenticate first; every decision here
// assumes the caller is a known account, so a denial maps to 403.
package authz

import "github.com/Spacemarine1789/yamdb-final/internal/models"

// Realm identifies a protected surface of the API. Each realm carries its own
// write rule; reads are open everywhere except the account realm.
type Realm string

const (
	// RealmAccounts covers /users: administrators only, reads included.
	RealmAccounts Realm = "accounts"
	// RealmCatalog covers categories, genres, and titles: writes are
	// administrator-only, reads are public.
	RealmCatalog Realm = "catalog"
	// RealmContent covers reviews and comments: writes are allowed to the
	// author and to staff, reads are public.
	RealmContent Realm = "content"
)

// Decision reports an authorization outcome together with the reason sent to
// the client on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	reasonAdminRequired = "administrator rights required"
	reasonNotOwner      = "you do not have permission to modify this content"
)

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// CanRead reports whether user may read the realm. Catalog and content reads
// are open; account records are visible to administrators only.
func CanRead(realm Realm, user models.User) Decision {
	if realm == RealmAccounts && !user.IsAdmin() {
		return deny(reasonAdminRequired)
	}
	return allow()
}

// CanWrite reports whether user may create, modify, or delete within the
// realm. ownerID names the author of the record being touched and is only
// meaningful for RealmContent; pass the empty string for creations.
func CanWrite(realm Realm, user models.User, ownerID string) Decision {
	switch realm {
	case RealmContent:
		if ownerID == "" || ownerID == user.ID || user.IsStaff() {
			return allow()
		}
		return deny(reasonNotOwner)
	default:
		if user.IsAdmin() {
			return allow()
		}
		return deny(reasonAdminRequired)
	}
}
