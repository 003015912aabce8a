package sessiongate

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/guardianentry/sessiongate/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestGate returns a Gate over an in-memory store and a controllable clock.
func newTestGate(t *testing.T, opts ...func(*Config)) (*Gate, *testClock) {
	t.Helper()
	return newTestGateWithStore(t, store.NewMemorySessionStore(), opts...)
}

func newTestGateWithStore(t *testing.T, sessions store.SessionStore, opts ...func(*Config)) (*Gate, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg := Config{
		SessionStore: sessions,
		Now:          clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create Gate: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g, clock
}

func withPolicy(mode PolicyMode, maxActive int, roles ...string) func(*Config) {
	return func(c *Config) {
		c.RolePolicy = RolePolicy{Mode: mode, Roles: roles, MaxActive: maxActive}
	}
}

func login(t *testing.T, g *Gate, userID, role, deviceID string) *Admission {
	t.Helper()
	adm, err := g.Admit(context.Background(), LoginRequest{
		UserID: userID,
		Role:   role,
		Device: DeviceInfo{ID: deviceID},
	})
	if err != nil {
		t.Fatalf("Admit(%s, %s): %v", userID, deviceID, err)
	}
	return adm
}

func TestSingleDeviceScenario(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	if adm := login(t, g, "U1", "student", "ip1_uaX"); adm.Outcome != OutcomeAdmitted {
		t.Fatalf("first login: got %v", adm.Outcome)
	}

	active := g.CheckActiveSession(ctx, "U1")
	if !active.Active || active.DeviceID != "ip1_uaX" {
		t.Fatalf("expected active on ip1_uaX, got %+v", active)
	}
	loginTime := active.LoginTime

	clock.Advance(time.Minute)
	verdict, err := g.Authorize(ctx, "U1", "ip1_uaX")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict != VerdictAllowed {
		t.Fatalf("expected allowed, got %v", verdict)
	}
	s := g.CheckActiveSession(ctx, "U1").Session
	if !s.LastActivity.Equal(clock.Now()) {
		t.Errorf("lastActivity not advanced: %v", s.LastActivity)
	}

	adm := login(t, g, "U1", "student", "ip2_uaY")
	if adm.Outcome != OutcomeConflict {
		t.Fatalf("login from second device: got %v", adm.Outcome)
	}
	if adm.Existing == nil || !adm.Existing.LoginTime.Equal(loginTime) {
		t.Errorf("conflict should carry the existing login time, got %+v", adm.Existing)
	}

	if err := g.DeleteSession(ctx, "U1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if g.CheckActiveSession(ctx, "U1").Active {
		t.Fatal("expected inactive after logout")
	}

	if adm := login(t, g, "U1", "student", "ip2_uaY"); adm.Outcome != OutcomeAdmitted {
		t.Fatalf("login after logout: got %v", adm.Outcome)
	}
}

func TestRejectedLoginLeavesSessionIntact(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	login(t, g, "U1", "parent", "device-a")
	before := g.CheckActiveSession(ctx, "U1")

	clock.Advance(time.Hour)
	if adm := login(t, g, "U1", "parent", "device-b"); adm.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", adm.Outcome)
	}

	after := g.CheckActiveSession(ctx, "U1")
	if after.DeviceID != before.DeviceID {
		t.Errorf("device changed from %s to %s", before.DeviceID, after.DeviceID)
	}
	if !after.LoginTime.Equal(before.LoginTime) {
		t.Errorf("login time changed from %v to %v", before.LoginTime, after.LoginTime)
	}
}

func TestSameDeviceReloginRefreshes(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	login(t, g, "U1", "student", "device-a")
	clock.Advance(2 * time.Hour)

	adm := login(t, g, "U1", "student", "device-a")
	if adm.Outcome != OutcomeAdmitted {
		t.Fatalf("same-device relogin: got %v", adm.Outcome)
	}

	s := g.CheckActiveSession(ctx, "U1").Session
	if !s.LoginTime.Equal(clock.Now()) || !s.LastActivity.Equal(clock.Now()) {
		t.Errorf("timestamps not refreshed: login %v, activity %v", s.LoginTime, s.LastActivity)
	}
}

func TestExpiredSessionAllowsNewDevice(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	login(t, g, "U1", "student", "device-a")
	clock.Advance(24*time.Hour + time.Second)

	if g.CheckActiveSession(ctx, "U1").Active {
		t.Fatal("expected inactive after timeout")
	}
	if adm := login(t, g, "U1", "student", "device-b"); adm.Outcome != OutcomeAdmitted {
		t.Fatalf("login after expiry: got %v", adm.Outcome)
	}
}

func TestExpiredButUnsweptSessionIsReplaced(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	g, clock := newTestGateWithStore(t, sessions)
	ctx := context.Background()

	login(t, g, "U1", "student", "device-a")
	clock.Advance(25 * time.Hour)

	// Admit reads through the stale record without a prior check.
	if adm := login(t, g, "U1", "student", "device-b"); adm.Outcome != OutcomeAdmitted {
		t.Fatalf("expected admitted, got %v", adm.Outcome)
	}
	s, err := sessions.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.DeviceID != "device-b" {
		t.Errorf("DeviceID = %s, want device-b", s.DeviceID)
	}
}

func TestCheckActiveSessionDeletesStale(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	g, clock := newTestGateWithStore(t, sessions)
	ctx := context.Background()

	if _, err := g.CreateSession(ctx, "U1", "device-a", "Student"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clock.Advance(30 * time.Hour)

	if g.CheckActiveSession(ctx, "U1").Active {
		t.Fatal("expected inactive")
	}
	if _, err := sessions.Get(ctx, "U1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("stale session not deleted: %v", err)
	}
}

func TestMalformedTimestampIsInactive(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	g, _ := newTestGateWithStore(t, sessions)
	ctx := context.Background()

	_ = sessions.Put(ctx, &store.Session{UserID: "U1", Role: "student", DeviceID: "device-a"})
	if g.CheckActiveSession(ctx, "U1").Active {
		t.Fatal("session without lastActivity should be inactive")
	}
}

func TestCreateSessionLowercasesRole(t *testing.T) {
	g, _ := newTestGate(t)
	s, err := g.CreateSession(context.Background(), "A1", "device-a", "Admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Role != "admin" {
		t.Errorf("Role = %q, want admin", s.Role)
	}
}

func TestUpdateActivityDoesNotCreate(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	g, _ := newTestGateWithStore(t, sessions)
	ctx := context.Background()

	if err := g.UpdateActivity(ctx, "ghost"); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	if _, err := sessions.Get(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateActivity created a session: %v", err)
	}
}

func TestUpdateActivityDoesNotReviveExpired(t *testing.T) {
	for name, newStore := range localBackends() {
		t.Run(name, func(t *testing.T) {
			sessions := newStore(t)
			g, clock := newTestGateWithStore(t, sessions)
			ctx := context.Background()

			login(t, g, "U1", "student", "device-a")
			clock.Advance(25 * time.Hour)

			if err := g.UpdateActivity(ctx, "U1"); err != nil {
				t.Fatalf("UpdateActivity: %v", err)
			}
			s, err := sessions.Get(ctx, "U1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !s.IsExpired(clock.Now(), g.Timeout()) {
				t.Errorf("expired session revived: last activity %v", s.LastActivity)
			}
			if g.CheckActiveSession(ctx, "U1").Active {
				t.Error("expected inactive after touching an expired session")
			}
		})
	}
}

// hookStore runs beforeDelete once, just before the next DeleteIfStale.
type hookStore struct {
	store.SessionStore
	beforeDelete func()
}

func (s *hookStore) DeleteIfStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error) {
	if hook := s.beforeDelete; hook != nil {
		s.beforeDelete = nil
		hook()
	}
	return s.SessionStore.DeleteIfStale(ctx, userID, staleBefore)
}

func TestLazyExpiryKeepsConcurrentLogin(t *testing.T) {
	for name, newStore := range localBackends() {
		t.Run(name, func(t *testing.T) {
			hooked := &hookStore{SessionStore: newStore(t)}
			g, clock := newTestGateWithStore(t, hooked)
			ctx := context.Background()

			login(t, g, "U1", "student", "device-a")
			clock.Advance(25 * time.Hour)

			// A login from another device lands after the stale record was read.
			hooked.beforeDelete = func() {
				if adm := login(t, g, "U1", "student", "device-b"); adm.Outcome != OutcomeAdmitted {
					t.Errorf("concurrent login: got %v", adm.Outcome)
				}
			}
			g.CheckActiveSession(ctx, "U1")

			active := g.CheckActiveSession(ctx, "U1")
			if !active.Active || active.DeviceID != "device-b" {
				t.Fatalf("fresh session lost: %+v", active)
			}
		})
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	login(t, g, "U1", "student", "device-a")
	if err := g.DeleteSession(ctx, "U1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := g.DeleteSession(ctx, "U1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := g.InvalidateSession(ctx, "U1"); err != nil {
		t.Fatalf("invalidate absent session: %v", err)
	}
}

func TestRoleExclusivePreempts(t *testing.T) {
	g, _ := newTestGate(t, withPolicy(PolicyExclusive, 0, "admin"))
	ctx := context.Background()

	login(t, g, "Admin", "admin", "office-pc")
	adm := login(t, g, "Developer", "admin", "laptop")
	if adm.Outcome != OutcomeAdmitted {
		t.Fatalf("second admin login: got %v", adm.Outcome)
	}
	if len(adm.Evicted) != 1 || adm.Evicted[0] != "Admin" {
		t.Fatalf("Evicted = %v, want [Admin]", adm.Evicted)
	}

	if g.CheckActiveSession(ctx, "Admin").Active {
		t.Error("preempted session should be gone")
	}
	if !g.CheckActiveSession(ctx, "Developer").Active {
		t.Error("winner should be active")
	}

	rs := g.CheckActiveSessionByRole(ctx, "admin")
	if !rs.Active || rs.ExistingUserID != "Developer" || rs.ExistingDeviceID != "laptop" {
		t.Errorf("CheckActiveSessionByRole = %+v", rs)
	}
}

func TestRoleExclusiveIgnoresOtherRoles(t *testing.T) {
	g, _ := newTestGate(t, withPolicy(PolicyExclusive, 0, "admin"))
	ctx := context.Background()

	login(t, g, "S1", "student", "phone-1")
	login(t, g, "S2", "student", "phone-2")

	if !g.CheckActiveSession(ctx, "S1").Active || !g.CheckActiveSession(ctx, "S2").Active {
		t.Fatal("students should not preempt each other")
	}
}

func TestConflictDoesNotPreempt(t *testing.T) {
	g, _ := newTestGate(t, withPolicy(PolicyExclusive, 0, "admin"))
	ctx := context.Background()

	// Seed two admin sessions directly, bypassing admission.
	if _, err := g.CreateSession(ctx, "A1", "pc-1", "admin"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := g.CreateSession(ctx, "A2", "pc-2", "admin"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	adm := login(t, g, "A1", "admin", "pc-3")
	if adm.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", adm.Outcome)
	}
	if len(adm.Evicted) != 0 {
		t.Errorf("rejected login evicted %v", adm.Evicted)
	}
	if !g.CheckActiveSession(ctx, "A2").Active {
		t.Error("A2 should not be preempted by a rejected login")
	}
	if got := g.CheckActiveSession(ctx, "A1").DeviceID; got != "pc-1" {
		t.Errorf("A1 device = %s, want pc-1", got)
	}
}

func TestRoleCappedLimit(t *testing.T) {
	g, _ := newTestGate(t, withPolicy(PolicyCapped, 2, "admin", "developer"))
	ctx := context.Background()

	login(t, g, "A1", "admin", "pc-1")
	login(t, g, "A2", "admin", "pc-2")

	adm := login(t, g, "A3", "admin", "pc-3")
	if adm.Outcome != OutcomeRoleLimit {
		t.Fatalf("third admin: got %v", adm.Outcome)
	}
	if adm.ActiveCount != 2 {
		t.Errorf("ActiveCount = %d, want 2", adm.ActiveCount)
	}
	if g.CheckActiveSession(ctx, "A3").Active {
		t.Error("rejected login created a session")
	}
	if !g.CheckActiveSession(ctx, "A1").Active || !g.CheckActiveSession(ctx, "A2").Active {
		t.Error("capped policy must not evict")
	}

	// A holder re-logging in on its own device is not counted against the cap.
	if adm := login(t, g, "A1", "admin", "pc-1"); adm.Outcome != OutcomeAdmitted {
		t.Errorf("same-device relogin under cap: got %v", adm.Outcome)
	}

	// Developers have their own count.
	if adm := login(t, g, "D1", "developer", "pc-4"); adm.Outcome != OutcomeAdmitted {
		t.Errorf("developer login: got %v", adm.Outcome)
	}

	if err := g.DeleteSession(ctx, "A2"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if adm := login(t, g, "A3", "admin", "pc-3"); adm.Outcome != OutcomeAdmitted {
		t.Errorf("login after a slot freed: got %v", adm.Outcome)
	}
}

func TestRoleCappedIgnoresExpired(t *testing.T) {
	g, clock := newTestGate(t, withPolicy(PolicyCapped, 1, "admin"))

	login(t, g, "A1", "admin", "pc-1")
	clock.Advance(25 * time.Hour)

	if adm := login(t, g, "A2", "admin", "pc-2"); adm.Outcome != OutcomeAdmitted {
		t.Fatalf("expired session counted against cap: %v", adm.Outcome)
	}
}

func TestRolePolicyNone(t *testing.T) {
	g, _ := newTestGate(t, withPolicy(PolicyNone, 0, "admin"))
	ctx := context.Background()

	login(t, g, "A1", "admin", "pc-1")
	adm := login(t, g, "A2", "admin", "pc-2")
	if adm.Outcome != OutcomeAdmitted || len(adm.Evicted) != 0 {
		t.Fatalf("got %+v", adm)
	}
	if !g.CheckActiveSession(ctx, "A1").Active {
		t.Error("A1 should remain active")
	}
}

func TestAdmitValidation(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	if _, err := g.Admit(ctx, LoginRequest{Device: DeviceInfo{ID: "d"}}); !errors.Is(err, ErrUserIDRequired) {
		t.Errorf("expected ErrUserIDRequired, got %v", err)
	}
	if _, err := g.Admit(ctx, LoginRequest{UserID: "U1"}); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("expected ErrDeviceIDRequired, got %v", err)
	}
}

func TestAdmitRecordsDeviceDetails(t *testing.T) {
	g, _ := newTestGate(t)
	adm, err := g.Admit(context.Background(), LoginRequest{
		UserID: "U1",
		Role:   "Student",
		Device: DeviceInfo{ID: "dev", IP: "8.8.8.8", Browser: "Chrome 120.0", OS: "Android 14", DeviceType: "mobile"},
		Location: LocationInfo{
			IP:      "8.8.8.8",
			City:    "Mountain View",
			Country: "United States",
		},
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	s := adm.Session
	if s.DeviceLabel != "Chrome 120.0 on Android 14 (mobile)" {
		t.Errorf("DeviceLabel = %q", s.DeviceLabel)
	}
	if s.City != "Mountain View" || s.Country != "United States" || s.IP != "8.8.8.8" {
		t.Errorf("location not recorded: %+v", s)
	}
	if s.Role != "student" {
		t.Errorf("Role = %q", s.Role)
	}
}

// localBackends returns constructors for the stores that need no server.
func localBackends() map[string]func(t *testing.T) store.SessionStore {
	return map[string]func(t *testing.T) store.SessionStore{
		"memory": func(t *testing.T) store.SessionStore { return store.NewMemorySessionStore() },
		"sqlite": func(t *testing.T) store.SessionStore {
			s, err := store.NewSQLite(filepath.Join(t.TempDir(), "gate.db"))
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return s
		},
	}
}

func TestConcurrentLoginsSingleWinner(t *testing.T) {
	for name, newStore := range localBackends() {
		t.Run(name, func(t *testing.T) {
			g, _ := newTestGateWithStore(t, newStore(t))
			ctx := context.Background()

			devices := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				admitted []string
			)
			for _, d := range devices {
				wg.Add(1)
				go func(device string) {
					defer wg.Done()
					adm, err := g.Admit(ctx, LoginRequest{UserID: "U1", Role: "student", Device: DeviceInfo{ID: device}})
					if err != nil {
						t.Errorf("Admit(%s): %v", device, err)
						return
					}
					if adm.Outcome == OutcomeAdmitted {
						mu.Lock()
						admitted = append(admitted, device)
						mu.Unlock()
					}
				}(d)
			}
			wg.Wait()

			if len(admitted) != 1 {
				t.Fatalf("expected one admitted device, got %v", admitted)
			}
			if got := g.CheckActiveSession(ctx, "U1").DeviceID; got != admitted[0] {
				t.Errorf("stored device %s, admitted %s", got, admitted[0])
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	verdict, err := g.Authorize(ctx, "U1", "device-a")
	if err != nil || verdict != VerdictNoSession {
		t.Fatalf("no session: got %v, %v", verdict, err)
	}

	login(t, g, "U1", "student", "device-a")

	if verdict, _ := g.Authorize(ctx, "U1", "device-b"); verdict != VerdictDeviceMismatch {
		t.Errorf("other device: got %v", verdict)
	}
	if verdict, _ := g.Authorize(ctx, "U1", "device-a"); verdict != VerdictAllowed {
		t.Errorf("owning device: got %v", verdict)
	}

	// Activity keeps the session alive past the original timeout.
	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Hour)
		if verdict, _ := g.Authorize(ctx, "U1", "device-a"); verdict != VerdictAllowed {
			t.Fatalf("refresh %d: got %v", i, verdict)
		}
	}

	clock.Advance(24*time.Hour + time.Millisecond)
	if verdict, _ := g.Authorize(ctx, "U1", "device-a"); verdict != VerdictNoSession {
		t.Errorf("after idle timeout: got %v", verdict)
	}

	if _, err := g.Authorize(ctx, "", "device-a"); !errors.Is(err, ErrUserIDRequired) {
		t.Errorf("empty user: got %v", err)
	}
}

// flakyStore fails the operations selected by its fields.
type flakyStore struct {
	store.SessionStore
	failGet   bool
	failList  bool
	failTouch bool
	failPut   bool
}

var errFlaky = errors.New("store unavailable")

func (s *flakyStore) Get(ctx context.Context, userID string) (*store.Session, error) {
	if s.failGet {
		return nil, errFlaky
	}
	return s.SessionStore.Get(ctx, userID)
}

func (s *flakyStore) ListByRole(ctx context.Context, role string) ([]*store.Session, error) {
	if s.failList {
		return nil, errFlaky
	}
	return s.SessionStore.ListByRole(ctx, role)
}

func (s *flakyStore) Touch(ctx context.Context, userID string, at, staleBefore time.Time) error {
	if s.failTouch {
		return errFlaky
	}
	return s.SessionStore.Touch(ctx, userID, at, staleBefore)
}

func (s *flakyStore) Put(ctx context.Context, session *store.Session) error {
	if s.failPut {
		return errFlaky
	}
	return s.SessionStore.Put(ctx, session)
}

func (s *flakyStore) PutIfAdmissible(ctx context.Context, session *store.Session, staleBefore time.Time) (bool, error) {
	if s.failPut {
		return false, errFlaky
	}
	return s.SessionStore.PutIfAdmissible(ctx, session, staleBefore)
}

func TestChecksFailOpen(t *testing.T) {
	flaky := &flakyStore{SessionStore: store.NewMemorySessionStore()}
	g, _ := newTestGateWithStore(t, flaky)
	ctx := context.Background()

	login(t, g, "A1", "admin", "pc-1")
	flaky.failGet = true
	flaky.failList = true

	if g.CheckActiveSession(ctx, "A1").Active {
		t.Error("CheckActiveSession should report inactive on store error")
	}
	if g.CheckActiveSessionByRole(ctx, "admin").Active {
		t.Error("CheckActiveSessionByRole should report inactive on store error")
	}
}

func TestWritesPropagateErrors(t *testing.T) {
	flaky := &flakyStore{SessionStore: store.NewMemorySessionStore(), failPut: true}
	g, _ := newTestGateWithStore(t, flaky)
	ctx := context.Background()

	if _, err := g.CreateSession(ctx, "U1", "device-a", "student"); !errors.Is(err, errFlaky) {
		t.Errorf("CreateSession: expected store error, got %v", err)
	}
	if _, err := g.Admit(ctx, LoginRequest{UserID: "U1", Role: "student", Device: DeviceInfo{ID: "device-a"}}); !errors.Is(err, errFlaky) {
		t.Errorf("Admit: expected store error, got %v", err)
	}

	flaky.failPut = false
	flaky.failGet = true
	if _, err := g.Admit(ctx, LoginRequest{UserID: "U1", Role: "student", Device: DeviceInfo{ID: "device-a"}}); !errors.Is(err, errFlaky) {
		t.Errorf("Admit with failing read: expected store error, got %v", err)
	}
}

func TestAuthorizeSurvivesActivityFailure(t *testing.T) {
	flaky := &flakyStore{SessionStore: store.NewMemorySessionStore()}
	g, _ := newTestGateWithStore(t, flaky)
	ctx := context.Background()

	login(t, g, "U1", "student", "device-a")
	flaky.failTouch = true

	verdict, err := g.Authorize(ctx, "U1", "device-a")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict != VerdictAllowed {
		t.Errorf("got %v, want allowed", verdict)
	}
}

func TestListSessionsSkipsExpired(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()

	login(t, g, "old", "student", "d1")
	clock.Advance(23 * time.Hour)
	login(t, g, "new", "student", "d2")
	clock.Advance(2 * time.Hour)

	live, err := g.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(live) != 1 || live[0].UserID != "new" {
		t.Errorf("ListSessions = %v", live)
	}
}

func TestParsePolicyMode(t *testing.T) {
	tests := []struct {
		in      string
		want    PolicyMode
		wantErr bool
	}{
		{"exclusive", PolicyExclusive, false},
		{" Capped ", PolicyCapped, false},
		{"NONE", PolicyNone, false},
		{"", PolicyExclusive, false},
		{"strict", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicyMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicyMode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicyMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRolePolicyGoverns(t *testing.T) {
	p := RolePolicy{Mode: PolicyCapped, Roles: []string{"admin", "Developer"}}
	if !p.Governs("ADMIN") || !p.Governs("developer") {
		t.Error("expected admin and developer to be governed")
	}
	if p.Governs("student") {
		t.Error("student should not be governed")
	}
	p.Mode = PolicyNone
	if p.Governs("admin") {
		t.Error("PolicyNone governs nothing")
	}
}

func TestDefaultConfig(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.SessionTimeout != 24*time.Hour {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if cfg.SweepInterval != 6*time.Hour {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.RolePolicy.Mode != PolicyExclusive || cfg.RolePolicy.MaxActive != 3 {
		t.Errorf("RolePolicy = %+v", cfg.RolePolicy)
	}
	if cfg.Logger == nil || cfg.Now == nil {
		t.Error("Logger and Now should be defaulted")
	}
}
