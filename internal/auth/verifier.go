package auth

import "errors"

// VerifierFunc adapts a function to the SignatureVerifier interface.
type VerifierFunc func(principal, challenge, signature string) error

func (f VerifierFunc) Verify(principal, challenge, signature string) error {
	return f(principal, challenge, signature)
}

var errVerifierDisabled = errors.New("wallet signature verification is not configured")

// DisabledVerifier rejects every wallet login. Used until a chain-side
// verifier is wired in deployment config.
func DisabledVerifier() SignatureVerifier {
	return VerifierFunc(func(string, string, string) error {
		return errVerifierDisabled
	})
}

// InsecureDevVerifier accepts any non-empty signature. Local development
// only, never enabled outside the dev config profile.
func InsecureDevVerifier() SignatureVerifier {
	return VerifierFunc(func(_, _, signature string) error {
		if signature == "" {
			return errors.New("empty signature")
		}
		return nil
	})
}
