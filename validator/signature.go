package validator

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/jwks"
	"github.com/entratools/aad-token-validator/token"
)

// RS256 is the only algorithm Azure AD signs ID and access tokens with.
const RS256 = "RS256"

// VerifyOutcome is the result of a signature check. Err is nil exactly when
// Valid is true.
type VerifyOutcome struct {
	Valid bool
	Err   error
}

// VerifySignature checks the RS256 signature of tok against key.
//
// The algorithm is checked before the key is looked at, so key may be nil
// for tokens with any other alg. VerifySignature does no claim checks and
// no I/O.
func VerifySignature(tok *token.Token, key *jwks.JWK) VerifyOutcome {
	if err := CheckAlgorithm(tok.Header.Alg); err != nil {
		return VerifyOutcome{Err: err}
	}

	if key == nil {
		return VerifyOutcome{Err: core.NewValidationError(
			core.ErrorCodeJWKSKeyNotFound,
			"unknown key id",
			fmt.Errorf("no key for kid %q", tok.Header.Kid),
		)}
	}

	pub, err := PublicKey(key)
	if err != nil {
		return VerifyOutcome{Err: err}
	}

	verifier, err := jws.NewVerifier(jwa.RS256)
	if err != nil {
		return VerifyOutcome{Err: core.NewValidationError(core.ErrorCodeKeyConstruction, "could not create RS256 verifier", err)}
	}

	if err := verifier.Verify(tok.SigningInput(), tok.Signature(), pub); err != nil {
		return VerifyOutcome{Err: core.NewValidationError(core.ErrorCodeInvalidSignature, "signature invalid", err)}
	}

	return VerifyOutcome{Valid: true}
}

// CheckAlgorithm fails with core.ErrUnsupportedAlgorithm unless alg is RS256.
// "none" and HMAC algorithms are always refused.
func CheckAlgorithm(alg string) error {
	if alg == RS256 {
		return nil
	}
	reason := fmt.Errorf("alg %q is not %s", alg, RS256)
	if strings.EqualFold(alg, "none") {
		reason = errors.New(`unsigned tokens (alg "none") are never accepted`)
	}
	return core.NewValidationError(core.ErrorCodeUnsupportedAlgorithm, "unsupported signature algorithm", reason)
}

// PublicKey builds an RSA public key from a published JWK. Keys with an
// unusable modulus or exponent fail with core.ErrKeyConstruction.
func PublicKey(key *jwks.JWK) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, keyConstructionError(key, fmt.Errorf("kty %q is not RSA", key.Kty))
	}

	rsaKey, ok := key.Key().(jwk.RSAPublicKey)
	if !ok {
		return nil, keyConstructionError(key, errors.New("no RSA key material"))
	}

	if new(big.Int).SetBytes(rsaKey.N()).Sign() <= 0 {
		return nil, keyConstructionError(key, errors.New("modulus must be positive"))
	}
	e := new(big.Int).SetBytes(rsaKey.E())
	if !e.IsInt64() || e.Int64() > math.MaxInt32 {
		return nil, keyConstructionError(key, errors.New("exponent overflows int"))
	}
	if e.Int64() < 2 {
		return nil, keyConstructionError(key, fmt.Errorf("exponent %d is too small", e.Int64()))
	}

	var raw interface{}
	if err := rsaKey.Raw(&raw); err != nil {
		return nil, keyConstructionError(key, err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, keyConstructionError(key, fmt.Errorf("unexpected key type %T", raw))
	}
	return pub, nil
}

func keyConstructionError(key *jwks.JWK, err error) error {
	return core.NewValidationError(
		core.ErrorCodeKeyConstruction,
		fmt.Sprintf("could not build key %q", key.Kid),
		err,
	)
}
