package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/sakif/accountkeeper/internal/apperror"
)

func TestUserName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"with digits and separators", "alice.b-2_x", false},
		{"unicode letters", "zoë", false},
		{"empty", "", true},
		{"leading dot", ".alice", true},
		{"slash", "ali/ce", true},
		{"space", "ali ce", true},
		{"percent", "ali%ce", true},
		{"too long", strings.Repeat("a", MaxUserNameLength+1), true},
		{"max length", strings.Repeat("a", MaxUserNameLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UserName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UserName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("UserName(%q) error does not wrap ErrValidation", tt.in)
			}
		})
	}
}

func TestReserved(t *testing.T) {
	tests := []struct {
		in      string
		wantMsg string
	}{
		{"Admin", "Sorry, you can't be the new admin."},
		{"ADMINISTRATOR", "Sorry, you can't be the new admin."},
		{"everyone", "Sorry, you can't be everyone."},
		{"EveryOne", "Sorry, you can't be everyone."},
		{"root", "Sorry, that user name is reserved."},
		{"alice", ""},
	}
	reserved := append([]string{"root"}, DefaultReservedNames...)
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := Reserved(tt.in, reserved)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Reserved(%q) = %v, want nil", tt.in, err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantMsg {
				t.Errorf("Reserved(%q) = %v, want %q", tt.in, err, tt.wantMsg)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"good", "Passw0rd!", false},
		{"short", "Ab1!", true},
		{"all same", "aaaaaaaaaa", true},
		{"short digits", "12345678", true},
		{"long digits", "123456789012", false},
		{"common", "Password", true},
		{"too many bytes", strings.Repeat("é", 40), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Password(tt.in); (err != nil) != tt.wantErr {
				t.Errorf("Password(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"a@x.com", false},
		{"first.last+tag@sub.example.org", false},
		{"", true},
		{"no-at-sign", true},
		{"a@localhost", true},
		{"Alice <a@x.com>", true},
		{"a@x.com ", true},
		{"a@.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if err := Email(tt.in); (err != nil) != tt.wantErr {
				t.Errorf("Email(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
