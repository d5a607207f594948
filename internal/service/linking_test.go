package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
)

func (f *fixture) linkPayload(t *testing.T, payload qrsign.LinkPayload) string {
	t.Helper()
	signed, err := f.signer.SignLink(payload)
	if err != nil {
		t.Fatalf("sign link: %v", err)
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		t.Fatalf("marshal link: %v", err)
	}
	return string(raw)
}

func childRegistrationPayload(f *fixture) qrsign.LinkPayload {
	return qrsign.LinkPayload{
		Type:       qrsign.KindChildRegistration,
		IssuerID:   "parent-1",
		IssuerName: "Kim",
		ChildName:  "Minjun",
		BirthYear:  2015,
		QRID:       "link-1",
		Exp:        f.now.Add(time.Hour).Unix(),
	}
}

func TestChildRegistrationBootstrapsPrincipal(t *testing.T) {
	f := newFixture()
	payload := f.linkPayload(t, childRegistrationPayload(f))

	result, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-new")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	reg := result.Registration
	if reg == nil {
		t.Fatalf("expected a registration result")
	}
	if reg.Session == nil {
		t.Fatalf("fresh principal must receive session tokens")
	}

	child, ok := f.repo.Users[reg.UserID]
	if !ok {
		t.Fatalf("child principal not created")
	}
	if child.Provider != model.ProviderAnonymous {
		t.Fatalf("provider = %s, want anonymous", child.Provider)
	}
	if child.BirthYear == nil || *child.BirthYear != 2015 {
		t.Fatalf("birth year not backfilled: %+v", child)
	}

	rel, err := f.repo.GetRelationByNickname(context.Background(), "parent-1", "Minjun")
	if err != nil {
		t.Fatalf("relation not created: %v", err)
	}
	if rel.ChildID != reg.UserID {
		t.Fatalf("relation child = %s, want %s", rel.ChildID, reg.UserID)
	}

	role, _ := f.repo.GetPrimaryRole(context.Background(), reg.UserID)
	if role != "child" {
		t.Fatalf("role = %q, want child", role)
	}

	device, err := f.repo.GetDeviceByIdentifier(context.Background(), "uuid-new")
	if err != nil || device.UserID != reg.UserID {
		t.Fatalf("scanned device not bound to child: %+v, %v", device, err)
	}
}

func TestChildRegistrationConvergesAcrossDevices(t *testing.T) {
	f := newFixture()
	payload := f.linkPayload(t, childRegistrationPayload(f))

	first, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-x")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-y")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if first.Registration.UserID != second.Registration.UserID {
		t.Fatalf("devices resolved to different principals: %s vs %s",
			first.Registration.UserID, second.Registration.UserID)
	}
	if !second.Registration.Transferred {
		t.Fatalf("second device must report a transfer")
	}
	if second.Registration.Session == nil {
		t.Fatalf("transferred unauthenticated device needs credentials")
	}

	device, err := f.repo.GetDeviceByIdentifier(context.Background(), "uuid-y")
	if err != nil || device.UserID != first.Registration.UserID {
		t.Fatalf("second device not repointed: %+v, %v", device, err)
	}
}

func TestChildRegistrationDeactivatesReplacedDevice(t *testing.T) {
	f := newFixture()
	payload := f.linkPayload(t, childRegistrationPayload(f))

	if _, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-x"); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if _, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-y"); err != nil {
		t.Fatalf("second scan: %v", err)
	}

	old, err := f.repo.GetDeviceByIdentifier(context.Background(), "uuid-x")
	if err != nil {
		t.Fatalf("lookup uuid-x: %v", err)
	}
	if old.Active {
		t.Fatalf("superseded device still active: %+v", old)
	}
	replacement, err := f.repo.GetDeviceByIdentifier(context.Background(), "uuid-y")
	if err != nil {
		t.Fatalf("lookup uuid-y: %v", err)
	}
	if !replacement.Active {
		t.Fatalf("repointed device must stay active: %+v", replacement)
	}
}

func TestChildRegistrationSameDeviceIdempotent(t *testing.T) {
	f := newFixture()
	payload := f.linkPayload(t, childRegistrationPayload(f))

	first, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-x")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-x")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if second.Registration.UserID != first.Registration.UserID {
		t.Fatalf("re-scan changed the principal")
	}
	if second.Registration.Transferred {
		t.Fatalf("re-scan from the same device is not a transfer")
	}
	if second.Registration.Session != nil {
		t.Fatalf("known device must not be re-credentialed")
	}
	if len(f.repo.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(f.repo.Relations))
	}
}

func TestScanLinkRejectsTamperAndExpiry(t *testing.T) {
	f := newFixture()

	payload := childRegistrationPayload(f)
	signed, err := f.signer.SignLink(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed.ChildName = "Someone Else"
	tampered, _ := json.Marshal(signed)
	if _, err := f.scanner.Scan(context.Background(), nil, string(tampered), "uuid-x"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	expired := childRegistrationPayload(f)
	expired.Exp = f.now.Add(-time.Minute).Unix()
	if _, err := f.scanner.Scan(context.Background(), nil, f.linkPayload(t, expired), "uuid-x"); !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParentLinkRequiresAuth(t *testing.T) {
	f := newFixture()
	payload := f.linkPayload(t, qrsign.LinkPayload{
		Type:       qrsign.KindParentLink,
		IssuerID:   "parent-1",
		IssuerName: "Kim",
		QRID:       "link-2",
		Exp:        f.now.Add(time.Hour).Unix(),
	})

	_, err := f.scanner.Scan(context.Background(), nil, payload, "uuid-x")
	if !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestParentLinkCopiesRelationsIdempotently(t *testing.T) {
	f := newFixture()
	nick1, nick2 := "Minjun", "Seoyeon"
	f.repo.Relations["parent-1|child-1"] = model.ParentChildRelation{ParentID: "parent-1", ChildID: "child-1", Nickname: &nick1}
	f.repo.Relations["parent-1|child-2"] = model.ParentChildRelation{ParentID: "parent-1", ChildID: "child-2", Nickname: &nick2}

	payload := f.linkPayload(t, qrsign.LinkPayload{
		Type:       qrsign.KindParentLink,
		IssuerID:   "parent-1",
		IssuerName: "Kim",
		QRID:       "link-2",
		Exp:        f.now.Add(time.Hour).Unix(),
	})

	authed := "parent-2"
	for i := 0; i < 2; i++ {
		result, err := f.scanner.Scan(context.Background(), &authed, payload, "uuid-p2")
		if err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
		if result.Registration == nil || result.Registration.UserID != "parent-2" {
			t.Fatalf("scan %d result = %+v", i, result.Registration)
		}
	}

	copied := 0
	for _, rel := range f.repo.Relations {
		if rel.ParentID == "parent-2" {
			copied++
		}
	}
	if copied != 2 {
		t.Fatalf("copied relations = %d, want 2 (no duplicates)", copied)
	}
	role, _ := f.repo.GetPrimaryRole(context.Background(), "parent-2")
	if role != "parent" {
		t.Fatalf("role = %q, want parent", role)
	}
}
