package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "table only",
			err:     NewTableNotFound("read table", "users"),
			wantMsg: "read table: table not found (users)",
		},
		{
			name:    "table and column",
			err:     New(ErrColumnExists, "add column", "users", "email", nil),
			wantMsg: "add column: column already exists (users.email)",
		},
		{
			name:    "with underlying error",
			err:     NewQuery("remove row", "users", fmt.Errorf("near \"=\": syntax error")),
			wantMsg: "remove row: query error (users): near \"=\": syntax error",
		},
		{
			name:    "no op",
			err:     &Error{Kind: ErrSchemaMismatch, Column: "nope"},
			wantMsg: "schema mismatch (nope)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	driverErr := fmt.Errorf("disk I/O error")
	err := NewStorage("open", "/tmp/x.db", driverErr)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected errors.Is(err, ErrStorageUnavailable)")
	}
	if !errors.Is(err, driverErr) {
		t.Error("expected errors.Is(err, driverErr)")
	}
	if errors.Is(err, ErrQuery) {
		t.Error("storage error should not match ErrQuery")
	}

	wrapped := fmt.Errorf("serve: %w", err)
	var target *Error
	if !As(wrapped, &target) {
		t.Fatal("expected As to find *Error")
	}
	if target.Table != "/tmp/x.db" {
		t.Errorf("Table = %q, want /tmp/x.db", target.Table)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewStorage("open", "x", nil), "STORAGE_UNAVAILABLE"},
		{NewTableNotFound("read", "t"), "TABLE_NOT_FOUND"},
		{New(ErrColumnNotFound, "remove column", "t", "c", nil), "COLUMN_NOT_FOUND"},
		{New(ErrColumnExists, "add column", "t", "c", nil), "COLUMN_EXISTS"},
		{New(ErrSchemaMismatch, "add row", "t", "c", nil), "SCHEMA_MISMATCH"},
		{NewQuery("remove row", "t", nil), "QUERY_ERROR"},
		{NewInvalid("add column", "bad name"), "INVALID_INPUT"},
		{fmt.Errorf("script: %w", ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("boom"), "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := NewTableNotFound("read table", "t")
	err := Wrapf(base, "export %s", "t")
	if err.Error() != "export t: read table: table not found (t)" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !Is(err, ErrTableNotFound) {
		t.Error("wrapped error should still match ErrTableNotFound")
	}
}
