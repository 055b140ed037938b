package auth

import "testing"

func TestNewVerifierIsUnique(t *testing.T) {
	a, err := NewVerifier()
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	b, err := NewVerifier()
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if a == b {
		t.Fatal("two verifiers are identical")
	}
	// 32 random bytes base64url-encode to 43 characters.
	if len(a) != 43 {
		t.Errorf("verifier length = %d, want 43", len(a))
	}
}

func TestChallengeMatchesReferenceVector(t *testing.T) {
	// Appendix B of RFC 7636.
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := Challenge(verifier); got != want {
		t.Errorf("Challenge() = %q, want %q", got, want)
	}
	if Challenge(verifier) != Challenge(verifier) {
		t.Error("Challenge is not deterministic")
	}
}

func TestNewStateIndependentOfVerifier(t *testing.T) {
	v, _ := NewVerifier()
	s, err := NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if s == v || s == Challenge(v) {
		t.Fatal("state collides with verifier material")
	}
}
