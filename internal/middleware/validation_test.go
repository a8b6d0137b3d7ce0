package middleware

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSection(t *testing.T) {
	tests := []struct {
		name    string
		section string
		wantErr error
	}{
		{"profile", "profile", nil},
		{"education", "education", nil},
		{"custom section", "recommendation_letters", nil},
		{"hyphenated", "summer-programs", nil},
		{"empty", "", ErrSectionInvalid},
		{"uppercase", "Profile", ErrSectionInvalid},
		{"spaces", "my docs", ErrSectionInvalid},
		{"path chars", "a/b", ErrSectionInvalid},
		{"too long", strings.Repeat("a", MaxSectionLength+1), ErrSectionTooLong},
		{"reserved outputs", "outputs", ErrSectionReserved},
		{"reserved tmp", "tmp", ErrSectionReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSection(tt.section)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSection(%q) = %v, want %v", tt.section, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{"simple pdf", "transcript.pdf", nil},
		{"with spaces", "my essay draft.docx", nil},
		{"empty", "", ErrFilenameEmpty},
		{"too long", strings.Repeat("a", MaxFilenameLength+1), ErrFilenameTooLong},
		{"forward slash", "a/b.pdf", ErrFilenameTraversal},
		{"backslash", `a\b.pdf`, ErrFilenameTraversal},
		{"dot dot", "..secret", ErrFilenameTraversal},
		{"control char", "file\x00.pdf", ErrFilenameNonASCII},
		{"non ascii", "résumé.pdf", ErrFilenameNonASCII},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFilename(%q) = %v, want %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"valid", "student@example.com", nil},
		{"subdomain", "a.b@mail.example.co.uk", nil},
		{"missing at", "studentexample.com", ErrEmailInvalid},
		{"missing domain", "student@", ErrEmailInvalid},
		{"missing tld", "student@example", ErrEmailInvalid},
		{"spaces", "stu dent@example.com", ErrEmailInvalid},
		{"too long", strings.Repeat("a", MaxEmailLength) + "@x.com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.wantErr)
			}
		})
	}
}
