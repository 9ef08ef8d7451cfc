package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const pathSite = wmiRoot + "SMS_Site"

// MinAdminServiceVersion is the first site build (1906) whose AdminService
// exposes the WMI routes used here.
const MinAdminServiceVersion = "5.00.8853"

// SiteInfo holds the parsed SMS_Site record.
type SiteInfo struct {
	SiteCode   string `json:"SiteCode"`
	SiteName   string `json:"SiteName"`
	Version    string `json:"Version"`
	BuildNum   int    `json:"BuildNumber"`
	ServerName string `json:"ServerName"`
}

type sitePage struct {
	Value []SiteInfo `json:"value"`
}

func (p sitePage) first() (*SiteInfo, error) {
	if len(p.Value) == 0 {
		return nil, fmt.Errorf("site response contains no sites")
	}
	site := p.Value[0]
	if site.SiteCode == "" {
		return nil, fmt.Errorf("site response missing SiteCode")
	}
	return &site, nil
}

// PingPaths returns the endpoints tried, in order, to reach the provider.
// Current builds expose the versioned route; older ones only the WMI route.
func PingPaths() []string {
	return []string{"/AdminService/v1.0/", wmiRoot}
}

// DiscoverSite reads SMS_Site to detect the site code and version.
func (p *SCCMPlatform) DiscoverSite(ctx context.Context) (*SiteInfo, error) {
	var page sitePage
	if err := p.client.GetJSON(ctx, pathSite, nil, &page); err != nil {
		return nil, err
	}
	return page.first()
}

// CompareVersions compares dotted numeric versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
// Handles partial versions and leading zeros (e.g. "5.00" vs "5.0.8853").
func CompareVersions(a, b string) int {
	aParts := parseVersionParts(a)
	bParts := parseVersionParts(b)

	maxLen := len(aParts)
	if len(bParts) > maxLen {
		maxLen = len(bParts)
	}

	for i := 0; i < maxLen; i++ {
		var av, bv int
		if i < len(aParts) {
			av = aParts[i]
		}
		if i < len(bParts) {
			bv = bParts[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// VersionAtLeast returns true if version >= min.
func VersionAtLeast(version, min string) bool {
	if version == "" || min == "" {
		return true
	}
	return CompareVersions(version, min) >= 0
}

func parseVersionParts(v string) []int {
	parts := strings.Split(v, ".")
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		result = append(result, n)
	}
	return result
}
