package config

import (
	"os"
	"strings"
)

const defaultConservationBaseURL = "https://akioka.cloud/api"

// GetConservationBaseURL returns the base URL of the Conservation API
// (the external stock-management system), without a trailing slash.
//
// Set via env:
// - CONSERVATION_API_BASE_URL=https://akioka.cloud/api
func GetConservationBaseURL() string {
	baseURL := strings.TrimSpace(os.Getenv("CONSERVATION_API_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultConservationBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// GetConservationSiteRoot strips the trailing /api segment from the base URL.
// Relative image paths in API responses are resolved against the site root.
func GetConservationSiteRoot() string {
	baseURL := GetConservationBaseURL()
	return strings.TrimSuffix(baseURL, "/api")
}
