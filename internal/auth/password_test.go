package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/model"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService returns a PasswordService with bcrypt cost 4.
// Cost 4 is the minimum allowed by the bcrypt library. This makes tests
// run in milliseconds instead of ~100ms each.
func newTestPasswordService() *PasswordService {
	return newPasswordServiceWithCost(4)
}

func mustHash(t *testing.T, ps *PasswordService, password string) model.Credential {
	t.Helper()
	cred, err := ps.Hash(context.Background(), password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	return cred
}

// =========================================================================
// CONSTRUCTOR TESTS
// =========================================================================

func TestNewPasswordService_Cost(t *testing.T) {
	tests := []struct {
		name     string
		cost     int
		wantErr  bool
		wantCost int
	}{
		{name: "zero selects default", cost: 0, wantCost: DefaultCost},
		{name: "minimum", cost: 4, wantCost: 4},
		{name: "below minimum", cost: 3, wantErr: true},
		{name: "above maximum", cost: 32, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewPasswordService(tt.cost)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewPasswordService() should have returned an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPasswordService() error = %v", err)
			}
			if ps.cost != tt.wantCost {
				t.Errorf("cost = %d, want %d", ps.cost, tt.wantCost)
			}
		})
	}
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	cred := mustHash(t, ps, "password123")

	if cred.IsFederated() {
		t.Fatal("Hash() returned the federated sentinel")
	}
	// bcrypt hashes always start with $2a$ or $2b$, and the stored form
	// must parse back as a local hash.
	if !strings.HasPrefix(cred.Hash(), "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", cred.Hash())
	}
	if model.ParseCredential(cred.String()).IsFederated() {
		t.Error("stored hash parsed back as the federated sentinel")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	// bcrypt generates a random salt each time, so two hashes for the
	// same password must differ: otherwise rainbow tables would work.
	hash1 := mustHash(t, ps, "same-password")
	hash2 := mustHash(t, ps, "same-password")

	if hash1.Hash() == hash2.Hash() {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	_, err := ps.Hash(context.Background(), strings.Repeat("a", 73))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Hash() error = %v, want ErrValidation", err)
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(context.Background(), strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

func TestHash_CancelledContext(t *testing.T) {
	ps := newTestPasswordService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ps.Hash(ctx, "password")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Hash() error = %v, want context.Canceled", err)
	}
}

// Every slot is taken: a caller whose context ends while waiting gets
// ctx.Err() back instead of blocking forever.
func TestHash_CancelledWhileWaitingForWorker(t *testing.T) {
	ps := newTestPasswordService()

	// Take every slot so the next Acquire has to wait.
	held := int64(0)
	for ps.sem.TryAcquire(1) {
		held++
	}
	t.Cleanup(func() { ps.sem.Release(held) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ps.Hash(ctx, "password")
		done <- err
	}()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Hash() error = %v, want context.Canceled", err)
	}
}

// =========================================================================
// Compare TESTS
// =========================================================================

func TestCompare(t *testing.T) {
	ps := newTestPasswordService()
	stored := mustHash(t, ps, "correct-horse-battery-staple")

	tests := []struct {
		name       string
		password   string
		credential model.Credential
		want       bool
	}{
		{name: "correct password", password: "correct-horse-battery-staple", credential: stored, want: true},
		{name: "wrong password", password: "the-wrong-password", credential: stored, want: false},
		{name: "empty password", password: "", credential: stored, want: false},
		{name: "federated sentinel never matches", password: "correct-horse-battery-staple", credential: model.FederatedSentinel(), want: false},
		{name: "legacy provider name never matches", password: "google", credential: model.ParseCredential("google"), want: false},
		{name: "over 72 bytes never matches", password: strings.Repeat("a", 80), credential: stored, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ps.Compare(context.Background(), tt.password, tt.credential)
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

// The dummy hash itself must not be reachable through the sentinel.
func TestCompare_SentinelRejectsDummyPassword(t *testing.T) {
	ps := newTestPasswordService()

	ok, err := ps.Compare(context.Background(), dummyPassword, model.FederatedSentinel())
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if ok {
		t.Error("Compare() matched the dummy password against the sentinel")
	}
}

func TestCompare_CancelledContext(t *testing.T) {
	ps := newTestPasswordService()
	stored := mustHash(t, ps, "pw")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := ps.Compare(ctx, "pw", stored)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Compare() error = %v, want context.Canceled", err)
	}
	if ok {
		t.Error("Compare() returned true on a cancelled context")
	}
}

// =========================================================================
// ROUND-TRIP TEST
// =========================================================================

func TestHashCompare_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "пароль-密码"},
		{"whitespace", "  leading and trailing  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred := mustHash(t, ps, tc.password)

			ok, err := ps.Compare(context.Background(), tc.password, cred)
			if err != nil || !ok {
				t.Errorf("Compare() = %v, %v for %q, want true, nil", ok, err, tc.password)
			}
		})
	}
}

// Many goroutines share one service; the semaphore bounds them without
// losing any result.
func TestHash_Concurrent(t *testing.T) {
	ps := newTestPasswordService()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ps.Hash(context.Background(), "concurrent")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Hash() error = %v", err)
		}
	}
}
