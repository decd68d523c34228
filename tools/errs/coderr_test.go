package errs

import (
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestIsMatchesOnCode(t *testing.T) {
	derived := ErrForbidden.WrapMsg("not a room member", "room", 100)
	if !errors.Is(derived, ErrForbidden) {
		t.Fatal("derived copy should match the sentinel")
	}
	if errors.Is(derived, ErrNotFound) {
		t.Fatal("different codes must not match")
	}

	// matching survives wrapping with other packages too
	wrapped := pkgerrors.Wrap(derived, "fan-out")
	if !errors.Is(wrapped, ErrForbidden) {
		t.Fatal("pkg/errors wrapping should not hide the code")
	}
}

func TestWithDetailLeavesSentinelsAlone(t *testing.T) {
	a := ErrInvalidArgument.WithDetail("first")
	b := ErrInvalidArgument.WithDetail("second")

	if ErrInvalidArgument.Detail != "" {
		t.Fatalf("sentinel mutated: %q", ErrInvalidArgument.Detail)
	}
	if a.Detail == b.Detail {
		t.Fatal("copies should carry their own detail")
	}
	if c := a.WithDetail("more"); !strings.Contains(c.Detail, "first") || !strings.Contains(c.Detail, "more") {
		t.Fatalf("chained detail = %q", c.Detail)
	}
}

func TestCodeOfAndMsgOf(t *testing.T) {
	if got := CodeOf(ErrRateLimited.WrapMsg("send rejected", "user", 7)); got != CodeRateLimited {
		t.Fatalf("CodeOf = %d, want %d", got, CodeRateLimited)
	}
	if got := CodeOf(errors.New("plain")); got != CodeServerInternal {
		t.Fatalf("CodeOf(plain) = %d, want %d", got, CodeServerInternal)
	}
	if got := MsgOf(errors.New("plain")); got != "internal error" {
		t.Fatalf("MsgOf(plain) = %q", got)
	}

	msg := MsgOf(ErrForbidden.WrapMsg("not a room member", "room", 100))
	if !strings.Contains(msg, "room=100") {
		t.Fatalf("MsgOf = %q, want the kv detail", msg)
	}
}

func TestWrapMsgFormatsKeyValues(t *testing.T) {
	err := ErrStorageUnavailable.WrapMsg("append", "room", 5, "seq", 9)
	s := err.Error()
	for _, want := range []string{"room=5", "seq=9", "append"} {
		if !strings.Contains(s, want) {
			t.Fatalf("Error() = %q missing %q", s, want)
		}
	}
}
