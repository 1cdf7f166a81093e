package client

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// DecodeServiceAccount decodes a base64 service account key.
func DecodeServiceAccount(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account: %w", err)
	}
	return data, nil
}

// GoogleClientOptions returns the client options and project for Google
// Cloud clients. With an empty key the application default credentials are
// used; when none are found the options are empty and each client falls
// back to its own discovery.
func GoogleClientOptions(ctx context.Context, serviceAccountJSON []byte) ([]option.ClientOption, string, error) {
	if len(serviceAccountJSON) == 0 {
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, "", nil
		}
		return []option.ClientOption{option.WithCredentials(creds)}, creds.ProjectID, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, cloudPlatformScope)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load service account: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, creds.ProjectID, nil
}
