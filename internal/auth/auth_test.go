package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

func TestHashPassword(t *testing.T) {
	t.Run("unique hashes", func(t *testing.T) {
		pw := "password1234"
		hash, err := HashPassword(pw)
		if err != nil {
			t.Fatalf("password hash fail #1: %+v", err)
		}

		hash2, err := HashPassword(pw)
		if err != nil {
			t.Fatalf("password hash fail #2: %+v", err)
		}

		if hash == hash2 {
			t.Fatalf("hash and hash2 are the same hashes; should be different: %s, %s", hash, hash2)
		}
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := HashPassword("")
		if err != nil {
			t.Errorf("HashPassword() failed on empty string: %+v", err)
		}
	})
}

func TestCheckPasswordHash(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		checkPw   string
		hash      string
		wantErr   bool
		wantMatch bool
	}{
		{"correct pw", "mypassword1234", "mypassword1234", "", false, true},
		{"incorrect pw", "mypassword1234", "passwordDD1234", "", false, false},
		{"wrong hash", "mypassword1234", "passwordDD1234", "not-a-hash", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hash string
			var err error

			if tt.hash != "" {
				hash = tt.hash
			} else {
				hash, err = HashPassword(tt.password)
				if err != nil {
					t.Fatalf("%+v", err)
				}
			}

			match, err := CheckPasswordHash(tt.checkPw, hash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckPasswordHash() error = %+v, wantErr = %v", err, tt.wantErr)
			}
			if match != tt.wantMatch {
				t.Errorf("CheckPasswordHash() match = %v, want = %v", match, tt.wantMatch)
			}
		})
	}
}

func TestToken(t *testing.T) {
	identity := model.Identity{ID: uuid.New(), DisplayName: "dummy"}

	t.Run("valid_token", func(t *testing.T) {
		tokenSecret := "validtokensecret"
		tokenString, err := MakeToken(identity, tokenSecret, 15*time.Second)
		if err != nil {
			t.Fatalf("MakeToken() error = %+v", err)
		}
		got, err := VerifyToken(tokenString, tokenSecret)
		if err != nil {
			t.Fatalf("VerifyToken() error = %+v", err)
		}
		if got.ID != identity.ID {
			t.Errorf("want = %+v, got = %+v", identity.ID, got.ID)
		}
		if got.DisplayName != identity.DisplayName {
			t.Errorf("want display name %q, got %q", identity.DisplayName, got.DisplayName)
		}
	})

	t.Run("incorrect_secret", func(t *testing.T) {
		tokenString, err := MakeToken(identity, "validtokensecret", 15*time.Second)
		if err != nil {
			t.Fatalf("MakeToken() error = %+v", err)
		}
		_, err = VerifyToken(tokenString, "fakesecret")
		if err == nil {
			t.Fatal("VerifyToken() accepted a token signed with another secret")
		}
	})

	t.Run("expired_token", func(t *testing.T) {
		tokenString, err := MakeToken(identity, "validtokensecret", -1*time.Second)
		if err != nil {
			t.Fatalf("MakeToken() error = %+v", err)
		}
		_, err = VerifyToken(tokenString, "validtokensecret")
		if err == nil {
			t.Fatal("VerifyToken() accepted an expired token")
		}
	})

	t.Run("corrupt_token", func(t *testing.T) {
		_, err := VerifyToken("corrupttoken", "validtokensecret")
		if err == nil {
			t.Fatal("VerifyToken() accepted a corrupt token")
		}
	})

	t.Run("empty_token", func(t *testing.T) {
		_, err := VerifyToken("", "validtokensecret")
		if err == nil {
			t.Fatal("VerifyToken() accepted an empty token")
		}
	})
}

func TestIdentityFromContext(t *testing.T) {
	t.Run("bound_identity", func(t *testing.T) {
		want := model.Identity{ID: uuid.New(), DisplayName: "dummy"}
		ctx := ContextWithIdentity(context.Background(), want)
		got, err := IdentityFromContext(ctx)
		if err != nil {
			t.Fatalf("IdentityFromContext(): expected identity but got error = %+v", err)
		}
		if got != want {
			t.Errorf("want %+v but got %+v", want, got)
		}
	})

	t.Run("wrong_value_type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), IdentityKey, "not-an-identity")
		_, err := IdentityFromContext(ctx)
		if err == nil {
			t.Fatal("IdentityFromContext(): expected error but got none")
		}
	})

	t.Run("no_context_value", func(t *testing.T) {
		_, err := IdentityFromContext(context.Background())
		if err == nil {
			t.Fatal("IdentityFromContext(): expected error but got none")
		}
	})
}
