package security

import (
	"errors"
	"testing"
	"time"

	"QChat/tools/errs"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, expireAt, err := Generate(opts, 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !expireAt.After(time.Now()) {
		t.Fatalf("expireAt = %v, want in the future", expireAt)
	}

	uid, err := Verify(opts, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != 42 {
		t.Fatalf("uid = %d, want 42", uid)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	good, _, err := Generate(opts, 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name  string
		opts  Options
		token string
	}{
		{"empty token", opts, ""},
		{"whitespace token", opts, "   "},
		{"garbage token", opts, "not.a.jwt"},
		{"wrong secret", DefaultOptions([]byte("other-secret")), good},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Verify(tc.opts, tc.token); !errors.Is(err, errs.ErrUnauthorized) {
				t.Fatalf("err = %v, want Unauthorized", err)
			}
		})
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	opts.TTL = -time.Minute

	token, _, err := Generate(opts, 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(opts, token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expired token = %v, want Unauthorized", err)
	}
}

func TestGenerateAlgs(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		opts := DefaultOptions([]byte("test-secret"))
		opts.Alg = alg
		token, _, err := Generate(opts, 7)
		if err != nil {
			t.Fatalf("%s generate: %v", alg, err)
		}
		if uid, err := Verify(opts, token); err != nil || uid != 7 {
			t.Fatalf("%s verify = %d, %v", alg, uid, err)
		}
	}

	opts := DefaultOptions([]byte("test-secret"))
	opts.Alg = "RS256"
	if _, _, err := Generate(opts, 7); err == nil {
		t.Fatal("non-HMAC alg should be rejected")
	}
}
