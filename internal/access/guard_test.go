package access

import (
	"errors"
	"testing"

	"github.com/vndr/vndr-music/internal/model"
)

func TestResolve_PublicCollectionPassThrough(t *testing.T) {
	g := NewGuard()

	sets, err := g.Resolve("genres", model.Identity{}, map[string]string{"name": "Jazz"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d filter sets, want 1", len(sets))
	}
	if sets[0]["name"] != "Jazz" {
		t.Fatalf("requested filter lost: %+v", sets[0])
	}
}

func TestResolve_AdminBypassesOwnerFilter(t *testing.T) {
	g := NewGuard()
	admin := model.Identity{UID: "admin-1", IsAdmin: true}

	sets, err := g.Resolve("works", admin, map[string]string{"artist_id": "someone-else"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d filter sets, want 1", len(sets))
	}
	if sets[0]["artist_id"] != "someone-else" {
		t.Fatalf("admin filters must pass through unmodified, got %+v", sets[0])
	}
}

func TestResolve_AnonymousDeniedOnSensitiveCollection(t *testing.T) {
	g := NewGuard()

	_, err := g.Resolve("vsd_transactions", model.Identity{}, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolve_OwnerFilterForced(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	sets, err := g.Resolve("vsd_transactions", caller, map[string]string{"type": "reward"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d filter sets, want 1", len(sets))
	}
	if sets[0]["user_id"] != "user-a" {
		t.Fatalf("owner filter not forced: %+v", sets[0])
	}
	if sets[0]["type"] != "reward" {
		t.Fatalf("requested filter lost: %+v", sets[0])
	}
}

func TestResolve_SpoofedOwnerFilterOverridden(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	sets, err := g.Resolve("vsd_transactions", caller, map[string]string{"user_id": "user-b"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if sets[0]["user_id"] != "user-a" {
		t.Fatalf("spoofed owner filter must be silently overridden, got %+v", sets[0])
	}
}

func TestResolve_WorksForeignArtistDenied(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	_, err := g.Resolve("works", caller, map[string]string{"artist_id": "user-b"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestResolve_WorksOwnArtistAllowed(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	sets, err := g.Resolve("works", caller, map[string]string{"artist_id": "user-a", "genre": "jazz"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if sets[0]["artist_id"] != "user-a" || sets[0]["genre"] != "jazz" {
		t.Fatalf("unexpected filter set: %+v", sets[0])
	}
}

func TestResolve_DenyForeignOwnerFilterFlag(t *testing.T) {
	g := &Guard{rules: map[string]Rule{
		"strict":  {OwnerField: "owner_id", DenyForeignOwnerFilter: true},
		"lenient": {OwnerField: "owner_id"},
	}}
	caller := model.Identity{UID: "user-a"}
	foreign := map[string]string{"owner_id": "user-b"}

	if _, err := g.Resolve("strict", caller, foreign); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("strict rule must reject a foreign owner filter, got %v", err)
	}

	sets, err := g.Resolve("lenient", caller, foreign)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if sets[0]["owner_id"] != "user-a" {
		t.Fatalf("lenient rule must override the foreign owner filter, got %+v", sets[0])
	}
}

func TestResolve_DualOwnershipUnion(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	sets, err := g.Resolve("license_requests", caller, map[string]string{"status": "pending"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d filter sets, want 2", len(sets))
	}

	var asArtist, asRequestor bool
	for _, fs := range sets {
		if fs["status"] != "pending" {
			t.Fatalf("requested filter lost in sub-query: %+v", fs)
		}
		if fs["artist_id"] == "user-a" && fs["requestor_id"] == "" {
			asArtist = true
		}
		if fs["requestor_id"] == "user-a" && fs["artist_id"] == "" {
			asRequestor = true
		}
	}
	if !asArtist || !asRequestor {
		t.Fatalf("expected artist and requestor sub-queries, got %+v", sets)
	}
}

func TestResolve_DualOwnershipSpoofedFieldsOverridden(t *testing.T) {
	g := NewGuard()
	caller := model.Identity{UID: "user-a"}

	sets, err := g.Resolve("license_requests", caller, map[string]string{
		"artist_id":    "user-b",
		"requestor_id": "user-c",
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	for _, fs := range sets {
		if fs["artist_id"] == "user-b" || fs["requestor_id"] == "user-c" {
			t.Fatalf("spoofed owner values survived: %+v", fs)
		}
	}
}
