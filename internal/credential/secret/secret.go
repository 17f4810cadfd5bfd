// Package secret mints and verifies the TOTP seeds bound to credentials.
package secret

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	dErrors "tempauth/pkg/domain-errors"
	"tempauth/pkg/platform/sentinel"
)

// SecretSize is the seed length in bytes before base32 encoding.
const SecretSize = 20

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Issued is the one-time disclosure of a freshly minted seed. It exists only
// in the creation response; no other path carries the secret out of the store.
type Issued struct {
	Secret          string
	ProvisioningURI string
}

// Generator mints seeds from a cryptographic entropy source and verifies
// submitted codes against them.
type Generator struct {
	issuer string
	period time.Duration
	skew   uint
	rand   io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand overrides the entropy source. Tests use it to force generation
// failures; production always uses the default crypto/rand reader.
func WithRand(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// NewGenerator creates a Generator for the given issuer label. Period is the
// code rotation interval; skew is how many adjacent periods verification
// tolerates in each direction.
func NewGenerator(issuer string, period time.Duration, skew uint, opts ...Option) *Generator {
	g := &Generator{
		issuer: issuer,
		period: period,
		skew:   skew,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate mints a fresh seed for the account and returns it alongside the
// otpauth:// provisioning URI authenticator apps enroll from.
func (g *Generator) Generate(account string) (Issued, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: account,
		Period:      uint(g.period.Seconds()),
		SecretSize:  SecretSize,
		Rand:        g.rand,
	})
	if err != nil {
		return Issued{}, dErrors.Wrap(
			fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err),
			dErrors.CodeUnavailable, "generate totp secret",
		)
	}
	return Issued{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// VerifyCode checks a submitted code against a seed at the given instant.
// A malformed code or seed is an error; a well-formed code that simply does
// not match returns (false, nil) so callers can distinguish "bad input" from
// "wrong code".
func (g *Generator) VerifyCode(seed, code string, at time.Time) (bool, error) {
	if seed == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	if !codePattern.MatchString(code) {
		return false, dErrors.New(dErrors.CodeInvalidInput, "code must be exactly 6 digits")
	}

	valid, err := totp.ValidateCustom(code, seed, at, totp.ValidateOpts{
		Period:    uint(g.period.Seconds()),
		Skew:      g.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInvalidInput, "verify totp code")
	}
	return valid, nil
}

// Period returns the code rotation interval.
func (g *Generator) Period() time.Duration {
	return g.period
}

// ReplayWindow is how long a verified code must stay unusable: the code's own
// period plus the tolerated skew on both sides.
func (g *Generator) ReplayWindow() time.Duration {
	return g.period * time.Duration(2*g.skew+1)
}
