package auth

import "testing"

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := BcryptHasher{Cost: 4} // minimum cost keeps the test fast
	digest, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if digest == "s3cret" {
		t.Fatal("digest must not be the plaintext")
	}
	if err := h.Verify("s3cret", digest); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if err := h.Verify("wrong", digest); err == nil {
		t.Error("wrong password must not verify")
	}
}

func TestBcryptHasherRejectsGarbageDigest(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	if err := h.Verify("anything", "not-a-bcrypt-digest"); err == nil {
		t.Error("garbage digest must not verify")
	}
}
