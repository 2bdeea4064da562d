package auth

// PASSWORD HASHING
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// bcrypt automatically:
//   - Generates a random salt (so two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds → 2^10 = 1024 iterations)
//	 version
//
// BOUNDED WORKERS:
// A bcrypt call pins a CPU for tens of milliseconds. If every request hashed
// on its own goroutine, a burst of logins could occupy every core and stall
// unrelated requests. PasswordService funnels all bcrypt work through a
// weighted semaphore sized to GOMAXPROCS, and the caller stops waiting as
// soon as its context is cancelled.

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/model"
)

// DefaultCost is the bcrypt work factor used when none is configured.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes ~100–300ms on your production hardware.
// Too low → easy to crack. Too high → login is sluggish and your server
// spends all its time on bcrypt during traffic spikes.
const DefaultCost = 10

// MaxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated by the algorithm, so we reject them instead.
const MaxPasswordBytes = 72

// dummyPassword is hashed once per service. Comparisons that have no real
// hash to check (unknown email, federated account) run against it so they
// take as long as a genuine mismatch.
const dummyPassword = "dummy-password-for-timing-equalisation"

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: using a lower cost (e.g. 4) makes tests run much faster
// without compromising the logic being tested.
type PasswordService struct {
	cost      int
	sem       *semaphore.Weighted
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the given bcrypt cost.
// A zero cost selects DefaultCost.
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return newPasswordServiceWithCost(cost), nil
}

// newPasswordServiceWithCost skips the range check. Unexported helper used
// by the constructors and the tests in this package.
func newPasswordServiceWithCost(cost int) *PasswordService {
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		// Only reachable with a cost outside bcrypt's range.
		panic(fmt.Sprintf("auth: generating dummy hash: %v", err))
	}
	return &PasswordService{
		cost:      cost,
		sem:       semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		dummyHash: dummy,
	}
}

// NewPasswordServiceForTest creates a PasswordService with a low bcrypt cost
// (4 is the minimum allowed). Use this in tests in other packages.
//
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return newPasswordServiceWithCost(cost)
}

// Hash hashes the given plaintext password with bcrypt and returns it as a
// local credential.
//
// Returns a validation error if the plaintext is longer than 72 bytes, and
// ctx.Err() if the caller gives up before the hash is ready.
func (p *PasswordService) Hash(ctx context.Context, plaintext string) (model.Credential, error) {
	if len(plaintext) > MaxPasswordBytes {
		return model.Credential{}, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordBytes))
	}

	var (
		hashed  []byte
		hashErr error
	)
	err := p.run(ctx, func() {
		hashed, hashErr = bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	})
	if err != nil {
		return model.Credential{}, err
	}
	if hashErr != nil {
		return model.Credential{}, fmt.Errorf("auth: hashing password: %w", hashErr)
	}

	return model.LocalHash(string(hashed)), nil
}

// Compare reports whether plaintext matches the credential.
//
// A mismatch is (false, nil), not an error. The federated sentinel never
// matches: it is compared against the dummy hash so the call costs the same
// as a real mismatch, then reported as false.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so an attacker can't tell from response time how close a guess was.
func (p *PasswordService) Compare(ctx context.Context, plaintext string, credential model.Credential) (bool, error) {
	hash := []byte(credential.Hash())
	realCheck := !credential.IsFederated() && len(plaintext) <= MaxPasswordBytes
	if !realCheck {
		hash = p.dummyHash
	}

	var cmpErr error
	err := p.run(ctx, func() {
		cmpErr = bcrypt.CompareHashAndPassword(hash, []byte(plaintext))
	})
	if err != nil {
		return false, err
	}
	if !realCheck {
		return false, nil
	}

	if cmpErr != nil {
		if errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("auth: comparing password hash: %w", cmpErr)
	}
	return true, nil
}

// run executes fn on a worker goroutine once a semaphore slot is free.
//
// If ctx ends while fn is still running, run returns ctx.Err() immediately;
// the worker finishes on its own and releases its slot. Callers must not
// read anything fn writes when run returns an error.
func (p *PasswordService) run(ctx context.Context, fn func()) error {
	// Acquire may succeed on an already-cancelled context if a slot is free.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
