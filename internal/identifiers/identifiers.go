// Package identifiers issues random external identifiers (holder codes and
// account numbers) that are unique in storage.
package identifiers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"bankledger/internal/ledger"

	"github.com/cenkalti/backoff/v4"
)

const DefaultMaxAttempts = 32

var (
	ErrExhausted = errors.New("no free identifier found")
	errTaken     = errors.New("identifier taken")
)

const (
	holderPrefix = "CT"
	bankCode     = "123"
	branchCode   = "456"
)

// Generator draws Prefix followed by Digits zero-padded random digits.
type Generator struct {
	Prefix      string
	Digits      int
	MaxAttempts int
	// InitialInterval is the first backoff delay between InsertUnique attempts.
	InitialInterval time.Duration
}

func HolderCodes() Generator {
	return Generator{Prefix: holderPrefix, Digits: 6, MaxAttempts: DefaultMaxAttempts, InitialInterval: time.Millisecond}
}

func AccountNumbers() Generator {
	return Generator{Prefix: "IT" + bankCode + branchCode, Digits: 6, MaxAttempts: DefaultMaxAttempts, InitialInterval: time.Millisecond}
}

func (g Generator) WithMaxAttempts(n int) Generator {
	if n > 0 {
		g.MaxAttempts = n
	}
	return g
}

// Candidate returns one random identifier without checking storage.
func (g Generator) Candidate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.Digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%0*d", g.Prefix, g.Digits, n), nil
}

// Valid reports whether value has the generator's prefix and digit count.
func (g Generator) Valid(value string) bool {
	if len(value) != len(g.Prefix)+g.Digits || value[:len(g.Prefix)] != g.Prefix {
		return false
	}
	for _, r := range value[len(g.Prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Next probes storage until it finds an unused candidate. After MaxAttempts
// collisions it reports ErrStorageFailure. Probes run back to back: callers
// hold row locks while probing.
func (g Generator) Next(ctx context.Context, exists ExistsFunc) (string, error) {
	var found string
	err := g.retry(ctx, &backoff.ZeroBackOff{}, func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		candidate, err := g.Candidate()
		if err != nil {
			return backoff.Permanent(err)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return backoff.Permanent(err)
		}
		if taken {
			return errTaken
		}
		found = candidate
		return nil
	})
	if err != nil {
		return "", g.exhausted(err)
	}
	return found, nil
}

// InsertUnique runs attempt until it succeeds, retrying with a fresh unit of
// work whenever isCollision reports that another writer committed the same
// identifier first.
func (g Generator) InsertUnique(ctx context.Context, attempt func(ctx context.Context) error, isCollision func(error) bool) error {
	err := g.retry(ctx, g.collisionBackOff(), func() error {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if isCollision(err) {
			return errTaken
		}
		return backoff.Permanent(err)
	})
	if err != nil {
		return g.exhausted(err)
	}
	return nil
}

func (g Generator) attempts() int {
	if g.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return g.MaxAttempts
}

func (g Generator) collisionBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if g.InitialInterval > 0 {
		policy.InitialInterval = g.InitialInterval
	}
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0
	return policy
}

func (g Generator) retry(ctx context.Context, policy backoff.BackOff, op backoff.Operation) error {
	bounded := backoff.WithMaxRetries(policy, uint64(g.attempts()-1))
	return backoff.Retry(op, backoff.WithContext(bounded, ctx))
}

func (g Generator) exhausted(err error) error {
	if errors.Is(err, errTaken) {
		return fmt.Errorf("%w: %w: %s after %d attempts", ledger.ErrStorageFailure, ErrExhausted, g.Prefix, g.attempts())
	}
	return err
}
