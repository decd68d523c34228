package errs

import (
	"errors"
	"fmt"
	"strings"
)

type CodeErrorI interface {
	ECode() int
	EMsg() string
	EDetail() string
	WithDetail(detail string) *CodeError
	error
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) ECode() int      { return e.Code }
func (e *CodeError) EMsg() string    { return e.Msg }
func (e *CodeError) EDetail() string { return e.Detail }

// WithDetail returns a copy carrying extra detail; the predefined
// sentinel errors are never mutated.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// WrapMsg returns a copy carrying a formatted key/value detail string.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	if msg == "" && len(kv) == 0 {
		return e
	}
	return e.WithDetail(toString(msg, kv))
}

// Is matches on code, so errors.Is(err, ErrForbidden) holds for any
// derived copy of the sentinel.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Code == e.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strings.Join([]string{"[", fmt.Sprint(e.Code), "]"}, ""), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// CodeOf extracts the taxonomy code from err, or CodeServerInternal when
// err carries none.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeServerInternal
}

// MsgOf extracts the client-facing message from err.
func MsgOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		if ce.Detail != "" {
			return ce.Msg + ": " + ce.Detail
		}
		return ce.Msg
	}
	return "internal error"
}

func New(msg string, kv ...any) error {
	return &CodeError{Code: CodeServerInternal, Msg: toString(msg, kv)}
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	v := make([]string, 0, 1+len(kv)/2)
	if msg != "" {
		v = append(v, msg)
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			v = append(v, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
		} else {
			v = append(v, fmt.Sprintf("%v", kv[i]))
		}
	}
	return strings.Join(v, " ")
}
