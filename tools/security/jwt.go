package security

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"QChat/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing algorithm and token lifetime.
type Options struct {
	Secret []byte        // HMAC key (from ENV/KMS in production)
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token lifetime (default 2h)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// Generate signs a token for userID. Used by the auth collaborator and by
// tests; the messaging core itself only verifies.
func Generate(opts Options, userID int64) (token string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}

	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks the token signature and expiry and returns the user
// identity from the sub claim. Any failure maps to ErrUnauthorized.
func Verify(opts Options, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, errs.ErrUnauthorized.WithDetail("missing token")
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return 0, errs.ErrUnauthorized.WrapMsg("verify", "err", err)
	}
	if !parsed.Valid {
		return 0, errs.ErrUnauthorized.WithDetail("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return 0, errs.ErrUnauthorized.WithDetail("claims type mismatch")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errs.ErrUnauthorized.WithDetail("missing sub claim")
	}
	uid, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, errs.ErrUnauthorized.WrapMsg("bad sub claim", "sub", sub)
	}
	return uid, nil
}

// Verifier adapts Options to the gateway's TokenVerifier contract.
type Verifier struct {
	Opts Options
}

func (v Verifier) Verify(token string) (int64, error) {
	return Verify(v.Opts, token)
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
