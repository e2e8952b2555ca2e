package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// providerMetadata is the subset of the OIDC discovery document the
// validator needs.
type providerMetadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURI resolves the issuer's discovery document and returns the
// JWKS endpoint it references.
func discoverJWKSURI(ctx context.Context, httpClient *http.Client, issuer string) (string, error) {
	wellKnown := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch issuer metadata from %s: %w", wellKnown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("issuer metadata request to %s returned status %d", wellKnown, resp.StatusCode)
	}

	var metadata providerMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return "", fmt.Errorf("decode issuer metadata: %w", err)
	}
	if metadata.Issuer != "" && strings.TrimRight(metadata.Issuer, "/") != strings.TrimRight(issuer, "/") {
		return "", fmt.Errorf("issuer metadata mismatch: document reports %q, expected %q", metadata.Issuer, issuer)
	}
	if metadata.JWKSURI == "" {
		return "", fmt.Errorf("issuer metadata from %s has no jwks_uri", wellKnown)
	}
	return metadata.JWKSURI, nil
}
