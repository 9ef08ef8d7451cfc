package models

import (
	"testing"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name   string
		site   Site
		expect string
	}{
		{"https default", Site{Scheme: "https", Host: "cm01.corp.local", Port: 443}, "https://cm01.corp.local:443"},
		{"http custom port", Site{Scheme: "http", Host: "cm02.corp.local", Port: 8080}, "http://cm02.corp.local:8080"},
		{"localhost", Site{Scheme: "http", Host: "localhost", Port: 80}, "http://localhost:80"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.site.BaseURL()
			if got != tc.expect {
				t.Errorf("BaseURL() = %q, want %q", got, tc.expect)
			}
		})
	}
}

func TestMaskedPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expect   string
	}{
		{"non-empty", "secret123", "••••••••"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Site{Password: tc.password}
			got := s.MaskedPassword()
			if got != tc.expect {
				t.Errorf("MaskedPassword() = %q, want %q", got, tc.expect)
			}
		})
	}
}

func TestSiteLabel(t *testing.T) {
	tests := []struct {
		name   string
		site   Site
		expect string
	}{
		{"name and code", Site{Name: "primary", Host: "cm01", Code: "p01"}, "primary (P01)"},
		{"host fallback", Site{Host: "cm01", Code: "P01"}, "cm01 (P01)"},
		{"no code", Site{Host: "cm01"}, "cm01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.site.Label(); got != tc.expect {
				t.Errorf("Label() = %q, want %q", got, tc.expect)
			}
		})
	}
}
