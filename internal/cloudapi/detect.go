package cloudapi

import (
	"context"
	"net/http"
	"os"
	"time"
)

// CloudType represents a cloud provider.
type CloudType string

const (
	CloudTypeAWS     CloudType = "aws"
	CloudTypeGCP     CloudType = "gcp"
	CloudTypeUnknown CloudType = "unknown"
)

// IMDS endpoints for cloud detection.
const (
	awsIMDSEndpoint = "http://169.254.169.254/latest/meta-data/"
	gcpIMDSEndpoint = "http://metadata.google.internal/computeMetadata/v1/"
)

// DetectCloud automatically detects the cloud provider.
// Detection order:
// 1. Environment variables (fastest)
// 2. IMDS endpoints (most reliable)
func DetectCloud(ctx context.Context) CloudType {
	if cloud := detectFromEnv(); cloud != CloudTypeUnknown {
		return cloud
	}
	if cloud := detectFromIMDS(ctx); cloud != CloudTypeUnknown {
		return cloud
	}
	return CloudTypeUnknown
}

// detectFromEnv checks common environment variables.
func detectFromEnv() CloudType {
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_DEFAULT_REGION") != "" {
		return CloudTypeAWS
	}
	if os.Getenv("AWS_EXECUTION_ENV") != "" {
		return CloudTypeAWS
	}

	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" || os.Getenv("GCP_PROJECT") != "" {
		return CloudTypeGCP
	}
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return CloudTypeGCP
	}

	return CloudTypeUnknown
}

// detectFromIMDS probes instance metadata endpoints.
func detectFromIMDS(ctx context.Context) CloudType {
	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	// Check GCP first (has unique header requirement)
	if checkGCPIMDS(ctx, client) {
		return CloudTypeGCP
	}
	if checkAWSIMDS(ctx, client) {
		return CloudTypeAWS
	}

	return CloudTypeUnknown
}

// checkAWSIMDS probes AWS Instance Metadata Service.
func checkAWSIMDS(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", awsIMDSEndpoint, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// checkGCPIMDS probes GCP Metadata Server.
func checkGCPIMDS(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", gcpIMDSEndpoint+"project/project-id", nil)
	if err != nil {
		return false
	}
	// GCP requires this header
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
