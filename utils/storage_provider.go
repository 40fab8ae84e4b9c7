package utils

import (
	"os"
	"strings"
)

const (
	StorageProviderLocal = "local"
	StorageProviderGCS   = "gcs"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

// GetLocalStorageDir returns the directory used by the local storage provider.
func GetLocalStorageDir() string {
	dir := strings.TrimSpace(os.Getenv("STORAGE_LOCAL_DIR"))
	if dir == "" {
		return "storage"
	}
	return dir
}
