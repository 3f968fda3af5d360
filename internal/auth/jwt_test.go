package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/journal/internal/apperror"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func assertInvalidToken(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", 0); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts := newTestTokenService(t)
	if ts.TTL() != 7*24*time.Hour {
		t.Errorf("TTL() = %v, want 7 days", ts.TTL())
	}

	custom, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if custom.TTL() != time.Hour {
		t.Errorf("TTL() = %v, want 1h", custom.TTL())
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// header.payload.signature
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("token has %d dots, want 2", n)
	}
}

func TestGenerate_ClaimsCarrySubjectIssuerAndExpiry(t *testing.T) {
	ts := newTestTokenService(t)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return fixed }

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatal(err)
	}

	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if c.Subject != "user-123" {
		t.Errorf("sub = %q, want user-123", c.Subject)
	}
	if c.Issuer != Issuer {
		t.Errorf("iss = %q, want %q", c.Issuer, Issuer)
	}
	if want := fixed.Add(7 * 24 * time.Hour); !c.ExpiresAt.Time.Equal(want) {
		t.Errorf("exp = %v, want %v", c.ExpiresAt.Time, want)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-abc")
	userID, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != "user-abc" {
		t.Errorf("Validate() userID = %q, want %q", userID, "user-abc")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ts.Validate(token)
	assertInvalidToken(t, err)
}

// A token issued just under 7 days ago is still accepted; one issued just
// over 7 days ago is not.
func TestValidate_SevenDayBoundary(t *testing.T) {
	ts := newTestTokenService(t)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return issued }
	token, _ := ts.Generate("user-1")

	ts.now = func() time.Time { return issued.Add(7*24*time.Hour - time.Minute) }
	if _, err := ts.Validate(token); err != nil {
		t.Errorf("Validate() just before expiry error = %v", err)
	}

	ts.now = func() time.Time { return issued.Add(7*24*time.Hour + time.Minute) }
	_, err := ts.Validate(token)
	assertInvalidToken(t, err)
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("user-123")

	// Flip a character in the signature part.
	b := []byte(token)
	last := len(b) - 2
	if b[last] == 'A' {
		b[last] = 'B'
	} else {
		b[last] = 'A'
	}

	_, err := ts.Validate(string(b))
	assertInvalidToken(t, err)
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1 := newTestTokenService(t)
	ts2, _ := NewTokenService("a-completely-different-secret!!", 0)

	token, _ := ts1.Generate("user-123")
	_, err := ts2.Validate(token)
	assertInvalidToken(t, err)
}

func TestValidate_WrongIssuer(t *testing.T) {
	ts := newTestTokenService(t)

	c := jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	_, err = ts.Validate(token)
	assertInvalidToken(t, err)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	ts := newTestTokenService(t)

	c := jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	_, err = ts.Validate(token)
	assertInvalidToken(t, err)
}

func TestValidate_MissingSubject(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("")

	_, err := ts.Validate(token)
	assertInvalidToken(t, err)
}

func TestValidate_MalformedIsUnauthenticated(t *testing.T) {
	ts := newTestTokenService(t)

	for _, token := range []string{"", "not.a.jwt", "garbage", "abc.def.ghi"} {
		_, err := ts.Validate(token)
		if !errors.Is(err, apperror.ErrUnauthenticated) {
			t.Errorf("Validate(%q) error = %v, want ErrUnauthenticated", token, err)
		}
		if errors.Is(err, apperror.ErrInvalidToken) {
			t.Errorf("Validate(%q) should not be ErrInvalidToken", token)
		}
	}
}
