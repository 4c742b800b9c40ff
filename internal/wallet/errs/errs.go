// Package errs defines the closed error taxonomy shared by every wallet component.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error. The set is closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindMnemonic
	KindKeyDerivation
	KindTransaction
	KindDeFi
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindMnemonic:
		return "mnemonic"
	case KindKeyDerivation:
		return "key derivation"
	case KindTransaction:
		return "transaction"
	case KindDeFi:
		return "defi"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

var (
	ErrInsufficientFunds = errors.New("Insufficient funds") //nolint:stylecheck,revive // message is part of the public contract
	ErrChainMismatch     = errors.New("chain mismatch")
	ErrPending           = errors.New("transaction is still pending")
	ErrNotFound          = errors.New("not found")
	ErrUnsupported       = errors.New("unsupported")
	ErrNoDeFi            = errors.New("no DeFi provider for chain")
)

// Error carries a Kind plus the operation and chain it happened in.
type Error struct {
	Kind  Kind
	Op    string
	Chain string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Chain != "" {
		b.WriteString(" [")
		b.WriteString(e.Chain)
		b.WriteString("]")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindDeFi}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Wrap attaches kind and operation context to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapChain is Wrap with the chain the operation ran against.
func WrapChain(kind Kind, op string, chain fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Chain: chain.String(), Err: err}
}

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Mnemonic(format string, args ...any) error      { return newf(KindMnemonic, format, args...) }
func KeyDerivation(format string, args ...any) error { return newf(KindKeyDerivation, format, args...) }
func Transaction(format string, args ...any) error   { return newf(KindTransaction, format, args...) }
func DeFi(format string, args ...any) error          { return newf(KindDeFi, format, args...) }
func Provider(format string, args ...any) error      { return newf(KindProvider, format, args...) }
func Unknown(format string, args ...any) error       { return newf(KindUnknown, format, args...) }

// TransactionErr wraps a sentinel into a Transaction error so callers can match both.
func TransactionErr(err error) error {
	return &Error{Kind: KindTransaction, Err: err}
}
