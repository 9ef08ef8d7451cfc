package models

import (
	"fmt"
	"strings"
)

// Site describes the Configuration Manager site the tool talks to through
// its AdminService endpoint.
type Site struct {
	Name     string `json:"name"`
	Code     string `json:"code"`   // three-character site code, e.g. "P01"
	Scheme   string `json:"scheme"` // "http" or "https"
	Host     string `json:"host"`   // SMS Provider host running AdminService
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Insecure bool   `json:"insecure"` // skip TLS verification
	CACert   string `json:"-"`        // PEM bundle used when Insecure is false

	// Populated by discovery.
	Version string `json:"version,omitempty"`
}

// BaseURL returns the full base URL for this site's AdminService.
func (s *Site) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", s.Scheme, s.Host, s.Port)
}

// MaskedPassword returns a fixed mask for non-empty passwords.
func (s *Site) MaskedPassword() string {
	if s.Password == "" {
		return ""
	}
	return "••••••••"
}

// Label returns a short human-readable identifier for logs.
func (s *Site) Label() string {
	name := s.Name
	if name == "" {
		name = s.Host
	}
	if s.Code != "" {
		return fmt.Sprintf("%s (%s)", name, strings.ToUpper(s.Code))
	}
	return name
}
