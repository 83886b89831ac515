package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/repos/testutil"
)

func newPersonaFixture(t *testing.T) (PersonaService, VersionService, uuid.UUID, uuid.UUID) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	ws := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")

	versionSvc := NewVersionService(db, log, repos.NewResourceVersionRepo(db, log))
	personaSvc := NewPersonaService(db, log, repos.NewPersonaRepo(db, log), versionSvc)
	return personaSvc, versionSvc, ws, persona.ID
}

func TestPersonaUpdateAppendsAutoVersion(t *testing.T) {
	personaSvc, versionSvc, ws, personaID := newPersonaFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	updated, err := personaSvc.Update(ctx, ws, userID, personaID, map[string]any{
		"name": "Maya Chen",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Maya Chen" {
		t.Fatalf("name not applied: %q", updated.Name)
	}

	versions, err := versionSvc.ListVersions(ctx, ws, ResourceTypePersona, personaID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected one auto version, got %d", len(versions))
	}
	if versions[0].CreatedBy != userID {
		t.Fatalf("version not attributed to the updating user")
	}
}

func TestPersonaUpdateNoChangeNoVersion(t *testing.T) {
	personaSvc, versionSvc, ws, personaID := newPersonaFixture(t)
	ctx := context.Background()

	if _, err := personaSvc.Update(ctx, ws, uuid.New(), personaID, map[string]any{
		"name": "Maya",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	versions, err := versionSvc.ListVersions(ctx, ws, ResourceTypePersona, personaID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("identical update appended a version")
	}
}

func TestPersonaSnapshotApplierRoundTrip(t *testing.T) {
	personaSvc, versionSvc, ws, personaID := newPersonaFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := personaSvc.Update(ctx, ws, userID, personaID, map[string]any{"name": "Maya Chen"}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := personaSvc.Update(ctx, ws, userID, personaID, map[string]any{"name": "Renamed Again"}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	versions, err := versionSvc.ListVersions(ctx, ws, ResourceTypePersona, personaID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	// Oldest listed last; restore the first rename.
	target := versions[len(versions)-1]

	if _, err := versionSvc.RestoreVersion(ctx, ws, userID, ResourceTypePersona, personaID, target.ID,
		personaSvc.SnapshotApplier(ws, personaID)); err != nil {
		t.Fatalf("RestoreVersion: %v", err)
	}

	persona, err := personaSvc.Get(ctx, ws, personaID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if persona.Name != "Maya Chen" {
		t.Fatalf("restore did not apply, name is %q", persona.Name)
	}
}
