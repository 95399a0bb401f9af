package postgres

import (
	"errors"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psifund/fundbot/internal/domain"
)

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if err := classify(nil); err != nil {
		t.Errorf("classify(nil) = %v", err)
	}
}

func TestClassifyPermanentCodes(t *testing.T) {
	t.Parallel()
	cases := []string{
		"42P01", // undefined table
		"42601", // syntax error
		"22003", // numeric out of range
		"23505", // unique violation
	}
	for _, code := range cases {
		err := classify(&pgconn.PgError{Code: code, Message: "boom"})
		if !errors.Is(err, domain.ErrQueryPermanent) {
			t.Errorf("code %s classified as %v, want ErrQueryPermanent", code, err)
		}
	}
}

func TestClassifyTransient(t *testing.T) {
	t.Parallel()
	cases := []error{
		&net.OpError{Op: "dial", Err: errors.New("connection refused")},
		&pgconn.PgError{Code: "40001", Message: "serialization failure"},
		&pgconn.PgError{Code: "57P01", Message: "admin shutdown"},
		errors.New("unexpected EOF"),
	}
	for _, in := range cases {
		err := classify(in)
		if !errors.Is(err, domain.ErrStoreTransient) {
			t.Errorf("%v classified as %v, want ErrStoreTransient", in, err)
		}
	}
}

func TestDSNBuilder(t *testing.T) {
	t.Parallel()
	got := DSN(ClientConfig{
		Host: "db.internal", Port: 5433, Database: "analytics",
		User: "bot", Password: "pw", SSLMode: "require",
	})
	want := "postgres://bot:pw@db.internal:5433/analytics?sslmode=require"
	if got != want {
		t.Errorf("dsn = %s, want %s", got, want)
	}

	// Explicit DSN wins over the discrete fields.
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Errorf("dsn = %s, want passthrough", got)
	}

	// Defaults fill port and ssl mode.
	got = DSN(ClientConfig{Host: "h", Database: "d", User: "u"})
	want = "postgres://u:@h:5432/d?sslmode=disable"
	if got != want {
		t.Errorf("dsn = %s, want %s", got, want)
	}
}
