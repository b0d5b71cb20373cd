package identity

import (
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "only spaces", in: "   \t\n ", want: ""},
		{name: "trim", in: "  John  ", want: "John"},
		{name: "collapse runs", in: "John \t  Doe", want: "John Doe"},
		{name: "newlines", in: "Acme\n\nCorp", want: "Acme Corp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeCompanyAndName(t *testing.T) {
	if got := NormalizeCompany("  ACME   Corp "); got != "acme corp" {
		t.Errorf("NormalizeCompany = %q, want %q", got, "acme corp")
	}
	if got := NormalizeName("  John   DOE "); got != "John DOE" {
		t.Errorf("NormalizeName = %q, want %q (case preserved)", got, "John DOE")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: " JOHN@ACME.COM ", want: "john@acme.com"},
		{in: "john@acme.com", want: "john@acme.com"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "formatted local", in: "(555) 123-4567", want: "5551234567"},
		{name: "dashes", in: "555-1234", want: "5551234"},
		{name: "international", in: "+1 (555) 123-4567", want: "+15551234567"},
		{name: "plus after whitespace is not leading", in: " +1 555", want: "1555"},
		{name: "plus in the middle is stripped", in: "1+2", want: "12"},
		{name: "no digits", in: "n/a", want: ""},
		{name: "plus only", in: "+", want: "+"},
		{name: "plus without digits", in: "+abc", want: "+"},
		{name: "non-ascii digits are stripped", in: "٣٤٥ 12", want: "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Normalized values must be fixed points of their normalizer.
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "+", "++1", "+1 (555) 123-4567", "555.1234", "abc", "  JOHN@Acme.com ",
		"John \t Doe", "+ 4 9", "0049 30", "ÄÖÜ@Example.ORG",
	}

	for _, in := range inputs {
		p := NormalizePhone(in)
		if again := NormalizePhone(p); again != p {
			t.Errorf("NormalizePhone not idempotent for %q: %q then %q", in, p, again)
		}

		e := NormalizeEmail(in)
		if again := NormalizeEmail(e); again != e {
			t.Errorf("NormalizeEmail not idempotent for %q: %q then %q", in, e, again)
		}

		c := NormalizeCompany(in)
		if again := NormalizeCompany(c); again != c {
			t.Errorf("NormalizeCompany not idempotent for %q: %q then %q", in, c, again)
		}
	}
}

func TestKey(t *testing.T) {
	full := Fields{
		CompanyName: " Acme  Corp",
		Name:        "John  Doe",
		Email:       "JOHN@ACME.COM ",
		Phone:       "(555) 1234",
	}

	tests := []struct {
		name   string
		fields Fields
		opts   Options
		want   string
	}{
		{
			name:   "all fields",
			fields: full,
			opts:   DefaultOptions(),
			want:   "acme corp|John Doe|john@acme.com|5551234",
		},
		{
			name:   "company masked",
			fields: full,
			opts:   Options{UseName: true, UseEmail: true, UsePhone: true},
			want:   "John Doe|john@acme.com|5551234",
		},
		{
			name:   "absent fields are dropped",
			fields: Fields{Name: "John Doe", Phone: "n/a"},
			opts:   DefaultOptions(),
			want:   "John Doe",
		},
		{
			name:   "nothing present",
			fields: Fields{},
			opts:   DefaultOptions(),
			want:   "",
		},
		{
			name:   "zero options",
			fields: full,
			opts:   Options{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.fields, tt.opts); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}
