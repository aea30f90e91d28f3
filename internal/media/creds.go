package media

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// clientOptionsFromEnv builds GCP client options from either an inline
// service-account JSON blob or a path to one, whichever is set. When
// neither is set it returns no options, which lets callers decide whether
// to fall back to a degraded resolver instead of erroring at startup.
func clientOptionsFromEnv() ([]option.ClientOption, bool) {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil, false
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}, true
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}, true
}
