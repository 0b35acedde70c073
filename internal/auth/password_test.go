package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == "Secret123!" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !VerifyPassword("Secret123!", hash) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("Secret123?", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	h1, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	h2, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestValidateStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "Secret123!", ""},
		{"too short", "S1!", "at least 8 characters"},
		{"no digit", "Secretive!", "at least one number"},
		{"no special", "Secret1234", "at least one special character"},
		{"hyphen counts as special", "Secret-123", ""},
		{"long but only letters", "onlyletters", "at least one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStrength(tt.password, 8)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("want error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateStrength_MinLengthConfigurable(t *testing.T) {
	if err := ValidateStrength("Ab1!", 4); err != nil {
		t.Fatalf("4-char password should pass with minLength 4: %v", err)
	}
	if err := ValidateStrength("Ab1!", 12); err == nil {
		t.Fatal("4-char password should fail with minLength 12")
	}
}
