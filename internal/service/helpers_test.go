package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
	"github.com/ohwonsuk/lockmoment-sub001/internal/testutil"
)

// seqIDs yields deterministic ids so tests can assert on created rows.
type seqIDs struct {
	n int64
}

func (s *seqIDs) NewID() string {
	return fmt.Sprintf("id-%04d", atomic.AddInt64(&s.n, 1))
}

type fixture struct {
	repo     *testutil.FakeRepo
	signer   *qrsign.Signer
	sessions *SessionMinter
	issuer   *Issuer
	linker   *Linker
	scanner  *Scanner
	now      time.Time
}

// testNow is a Monday at noon UTC, so window tests can reason about
// weekdays without depending on the wall clock.
var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	repo := testutil.NewFakeRepo()
	signer := qrsign.New([]byte("test-qr-secret-0123456789abcdef0"))
	sessions := NewSessionMinter("test-jwt-secret", "test", time.Hour, 7*24*time.Hour)
	ids := &seqIDs{}
	logger := zap.NewNop()

	clock := func() time.Time { return testNow }
	issuer := NewIssuer(repo, repo, signer, ids, 24*time.Hour, time.Hour, logger).WithClock(clock)
	linker := NewLinker(repo, sessions, ids, logger)
	linker.now = clock
	scanner := NewScanner(repo, repo, signer, linker, nil, time.UTC, ids, logger).WithClock(clock)

	return &fixture{
		repo:     repo,
		signer:   signer,
		sessions: sessions,
		issuer:   issuer,
		linker:   linker,
		scanner:  scanner,
		now:      testNow,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
