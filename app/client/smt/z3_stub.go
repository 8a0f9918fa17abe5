//go:build !cgo || noz3

package smt

func Z3Available() bool {
	return false
}

type z3Engine struct{}

// NewZ3 returns a placeholder whose sessions fail with ErrUnavailable.
func NewZ3() Engine {
	return z3Engine{}
}

func (z3Engine) Name() string {
	return "z3"
}

func (z3Engine) NewSession(Options) (Session, error) {
	return nil, ErrUnavailable
}
