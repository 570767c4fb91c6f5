package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParse(t *testing.T) {
	tok, err := IssueToken(secret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	owner, err := ParseToken(secret, tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if owner != "user-1" {
		t.Errorf("owner = %q, want user-1", owner)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	good, _ := IssueToken(secret, "user-1", time.Hour)
	expired, _ := IssueToken(secret, "user-1", -time.Minute)
	other, _ := IssueToken([]byte("other"), "user-1", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", other},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(secret, tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken(nil, "u", time.Hour); err == nil {
		t.Error("empty secret accepted")
	}
	if _, err := IssueToken(secret, "  ", time.Hour); err == nil {
		t.Error("blank owner accepted")
	}
}

func TestResolver(t *testing.T) {
	tok, _ := IssueToken(secret, "alice", time.Hour)

	tests := []struct {
		name     string
		devOwner string
		header   string
		want     string
		wantErr  error
	}{
		{"bearer", "", "Bearer " + tok, "alice", nil},
		{"lowercase scheme", "", "bearer " + tok, "alice", nil},
		{"missing", "", "", "", ErrNoCredentials},
		{"dev owner fallback", "dev", "", "dev", nil},
		{"bad token beats dev owner", "dev", "Bearer nope", "", ErrInvalidToken},
		{"wrong scheme", "", "Basic abc", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := NewResolver(secret, tt.devOwner).Owner(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Owner: %v", err)
			}
			if got != tt.want {
				t.Errorf("owner = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOwnerContext(t *testing.T) {
	if got := OwnerFromContext(context.Background()); got != "" {
		t.Errorf("empty context owner = %q", got)
	}
	ctx := WithOwner(context.Background(), "bob")
	if got := OwnerFromContext(ctx); got != "bob" {
		t.Errorf("owner = %q, want bob", got)
	}
}
