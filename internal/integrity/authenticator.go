package integrity

// Authenticator verifies a cryptographic signature over a staged artifact.
// The orchestrator consumes this interface so a signing scheme can be added
// without touching the install flow; today transport security plus the
// published checksum anchor trust.
type Authenticator interface {
	VerifySignature(path string, signature []byte) Result
}

type noopAuthenticator struct{}

// NewNoopAuthenticator returns the default Authenticator, which accepts every
// artifact because no signature scheme is configured.
func NewNoopAuthenticator() Authenticator {
	return noopAuthenticator{}
}

func (noopAuthenticator) VerifySignature(string, []byte) Result {
	return Result{OK: true, Detail: "signature verification not configured"}
}
