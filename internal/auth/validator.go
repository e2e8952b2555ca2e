// Package auth validates lifecycle signal proof tokens against a trusted
// issuer's published signing keys.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/mooring-labs/searchlink/internal/logger"
)

// Refresh policies for the signing key cache.
const (
	// RefreshOnFailure refreshes the key set once when verification fails
	// against the cached keys, then re-validates once.
	RefreshOnFailure = "on-failure"
	// RefreshAlways refreshes the key set before every validation, subject
	// to the minimum refresh interval.
	RefreshAlways = "always"
)

const defaultMinRefreshInterval = 5 * time.Minute

var (
	// ErrNoKeyID indicates the token header carries no key id to resolve.
	ErrNoKeyID = errors.New("token has no kid header")
	// ErrKeyNotFound indicates the key id is not in the issuer's key set.
	ErrKeyNotFound = errors.New("signing key not found in issuer key set")
)

// Validator verifies bearer tokens against the trusted issuer. The issuer's
// key set is cached across validations and kept fresh in the background
// until the constructor context is canceled; the refresh policy controls
// when a forced refresh happens on top of that.
type Validator struct {
	issuer   string
	audience string
	jwksURI  string

	cache  *jwk.Cache
	parser *jwt.Parser

	policy             string
	minRefreshInterval time.Duration

	mu           sync.Mutex
	lastRefresh  time.Time
	refreshGroup singleflight.Group
}

type options struct {
	httpClient         *http.Client
	policy             string
	minRefreshInterval time.Duration
	leeway             time.Duration
}

// Option configures the validator.
type Option func(*options)

// WithHTTPClient sets the client used for issuer discovery.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

// WithRefreshPolicy sets when the cached key set is refreshed.
func WithRefreshPolicy(policy string) Option {
	return func(o *options) {
		if policy != "" {
			o.policy = policy
		}
	}
}

// WithMinRefreshInterval throttles forced key refreshes. A failed
// validation inside the interval is reported without another fetch.
func WithMinRefreshInterval(interval time.Duration) Option {
	return func(o *options) {
		o.minRefreshInterval = interval
	}
}

// WithLeeway tolerates clock skew when checking time-based claims.
func WithLeeway(leeway time.Duration) Option {
	return func(o *options) {
		o.leeway = leeway
	}
}

// NewValidator discovers the issuer's JWKS endpoint and prepares the key
// cache. The context governs the cache's background refreshes; cancel it to
// stop them.
func NewValidator(ctx context.Context, issuer, audience string, opts ...Option) (*Validator, error) {
	o := &options{
		httpClient:         http.DefaultClient,
		policy:             RefreshOnFailure,
		minRefreshInterval: defaultMinRefreshInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	jwksURI, err := discoverJWKSURI(ctx, o.httpClient, issuer)
	if err != nil {
		return nil, err
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	if err := cache.Register(ctx, jwksURI); err != nil {
		return nil, fmt.Errorf("register JWKS endpoint %s: %w", jwksURI, err)
	}
	if _, err := cache.Lookup(ctx, jwksURI); err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURI, err)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if o.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(o.leeway))
	}

	logger.Infof("Token validator ready: issuer=%s jwks=%s policy=%s", issuer, jwksURI, o.policy)

	return &Validator{
		issuer:             issuer,
		audience:           audience,
		jwksURI:            jwksURI,
		cache:              cache,
		parser:             jwt.NewParser(parserOpts...),
		policy:             o.policy,
		minRefreshInterval: o.minRefreshInterval,
		lastRefresh:        time.Now(),
	}, nil
}

// ValidateToken verifies a raw token's signature, issuer, audience, and
// expiry. Under the on-failure policy a verification failure that looks like
// key rotation (unknown kid or bad signature) triggers one key refresh and a
// single re-validation.
func (v *Validator) ValidateToken(ctx context.Context, raw string) (jwt.MapClaims, error) {
	if v.policy == RefreshAlways {
		v.refreshKeys(ctx)
	}

	claims, err := v.parse(ctx, raw)
	if err == nil {
		return claims, nil
	}
	if v.policy != RefreshOnFailure || !isKeyFailure(err) {
		return nil, err
	}

	if !v.refreshKeys(ctx) {
		return nil, err
	}
	return v.parse(ctx, raw)
}

func (v *Validator) parse(ctx context.Context, raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.resolveKey(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// resolveKey finds the public key matching the token's kid in the cached
// issuer key set.
func (v *Validator) resolveKey(ctx context.Context, token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, ErrNoKeyID
	}

	set, err := v.cache.Lookup(ctx, v.jwksURI)
	if err != nil {
		return nil, fmt.Errorf("look up issuer key set: %w", err)
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("export signing key %q: %w", kid, err)
	}
	return rawKey, nil
}

// isKeyFailure reports whether the validation error could be explained by a
// rotated key set. Claim failures such as expiry or audience are not,
// since fresher keys cannot fix them.
func isKeyFailure(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, jwt.ErrTokenSignatureInvalid)
}

// refreshKeys forces one JWKS fetch, throttled by the minimum refresh
// interval. Concurrent callers share a single fetch; the cache applies the
// fetched set atomically, so a racing refresh leaves the last written set in
// place. Reports whether a refresh happened.
func (v *Validator) refreshKeys(ctx context.Context) bool {
	v.mu.Lock()
	throttled := time.Since(v.lastRefresh) < v.minRefreshInterval
	v.mu.Unlock()
	if throttled {
		return false
	}

	_, err, _ := v.refreshGroup.Do("jwks", func() (any, error) {
		set, err := v.cache.Refresh(ctx, v.jwksURI)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.lastRefresh = time.Now()
		v.mu.Unlock()
		return set, nil
	})
	if err != nil {
		logger.Warnf("JWKS refresh from %s failed: %v", v.jwksURI, err)
		return false
	}

	logger.Debugf("Refreshed issuer key set from %s", v.jwksURI)
	return true
}
