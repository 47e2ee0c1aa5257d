package transport

import (
	"errors"
	"fmt"
)

var (
	ErrRemoteKeyFetch = errors.New("error getting tee pubkey from server")
	ErrKeyDecode      = errors.New("error decoding tee pubkey")
	ErrKeyGeneration  = errors.New("error generating ephemeral key")
	ErrEncryption     = errors.New("error encrypting input")
	ErrDecryption     = errors.New("error decrypting output")
)

// TransportError is returned when the confidential layer fails before or after
// the inner provider runs. Kind is one of the sentinels above.
type TransportError struct {
	Kind error
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func transportErr(kind, err error) error {
	return &TransportError{Kind: kind, Err: err}
}
