package mail

import "fmt"

// AuthenticationError reports an SMTP server that rejected the credential
// exchange. Code is the server's reply code (535 for bad credentials) and
// Message the server-supplied text.
type AuthenticationError struct {
	Code    int
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("smtp authentication rejected: %d %s", e.Code, e.Message)
}

// TransportError reports a connect, handshake or protocol failure below the
// authentication layer. Op names the phase that failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("smtp transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
