package access

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"

	"github.com/relabs-tech/coffeeshop/core/logger"
	"github.com/relabs-tech/coffeeshop/core/registry"
)

// ErrKeyNotFound is returned by KeySet.Key when the issuer publishes no key for the kid
var ErrKeyNotFound = errors.New("no key for kid")

// default freshness policy
const (
	DefaultKeySetTTL         = 6 * time.Hour
	DefaultRefreshRateLimit  = time.Minute
	defaultKeySetHTTPTimeout = 10 * time.Second
)

// KeySetBuilder is a helper builder for KeySet
type KeySetBuilder struct {
	// URL is the download url of the issuer's JSON Web Key Set, for Auth0 this is
	//  "https://{domain}/.well-known/jwks.json". This is mandatory.
	URL string
	// TTL is how long a downloaded key set is used before it is downloaded again.
	// Defaults to DefaultKeySetTTL.
	TTL time.Duration
	// RefreshRateLimit is the minimum time between two downloads triggered by an
	// unknown key id. Defaults to DefaultRefreshRateLimit.
	RefreshRateLimit time.Duration
	// HTTPClient is used for downloads. Optional.
	HTTPClient *http.Client
	// Registry persists the key set, so that a restarted process can reuse a
	// key set that is still fresh. Optional.
	Registry *registry.Registry
}

// KeySet is a process wide cache of an issuer's public keys, indexed by key id.
//
// Keys are downloaded when the cache is older than its TTL, and once more when a
// token refers to a key id the cache does not know, which is what happens after the
// issuer rotated its keys. Both kinds of download are subject to the refresh rate
// limit, and while a download is running, callers keep using the cached keys.
type KeySet struct {
	url              string
	ttl              time.Duration
	refreshRateLimit time.Duration
	httpClient       *http.Client
	registry         *registry.Accessor
	now              func() time.Time

	// download serializes downloads, mutex guards the fields below
	download    sync.Mutex
	mutex       sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// jsonWebKey is a single key of a JSON Web Key Set (RFC 7517)
type jsonWebKey struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Alg string   `json:"alg,omitempty"`
	Use string   `json:"use,omitempty"`
	N   string   `json:"n,omitempty"`
	E   string   `json:"e,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// NewKeySet returns a new key set. Nothing is downloaded until the first key is requested.
func NewKeySet(b *KeySetBuilder) *KeySet {
	if b.URL == "" {
		panic("key set URL is missing")
	}
	k := &KeySet{
		url:              b.URL,
		ttl:              b.TTL,
		refreshRateLimit: b.RefreshRateLimit,
		httpClient:       b.HTTPClient,
		keys:             map[string]*rsa.PublicKey{},
		now:              time.Now,
	}
	if k.ttl <= 0 {
		k.ttl = DefaultKeySetTTL
	}
	if k.refreshRateLimit <= 0 {
		k.refreshRateLimit = DefaultRefreshRateLimit
	}
	if k.httpClient == nil {
		k.httpClient = &http.Client{Timeout: defaultKeySetHTTPTimeout}
	}
	if b.Registry != nil {
		accessor := b.Registry.Accessor("_jwks_")
		k.registry = &accessor
	}
	return k
}

// Key returns the public key for the key id.
//
// It returns ErrKeyNotFound if the issuer does not publish such a key, or
// another error if the key set could not be obtained.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	rlog := logger.FromContext(ctx)

	if k.expired() {
		if err := k.update(ctx, k.expired); err != nil {
			if k.size() == 0 {
				return nil, err
			}
			rlog.WithError(err).Warningln("key set: keeping stale keys")
		}
	}
	if k.size() == 0 {
		return nil, errNoKeys
	}
	if key := k.lookup(kid); key != nil {
		return key, nil
	}

	// refresh on miss, the issuer may have rotated its keys
	if k.mayDownload() {
		rlog.Debugf("key set: unknown kid %s, refreshing %d keys", kid, k.size())
		if err := k.update(ctx, k.mayDownload); err != nil {
			return nil, err
		}
		if key := k.lookup(kid); key != nil {
			return key, nil
		}
	}
	rlog.Warningf("key set: have %d keys, but not %s", k.size(), kid)
	return nil, ErrKeyNotFound
}

// Refresh downloads the key set unconditionally
func (k *KeySet) Refresh(ctx context.Context) error {
	k.download.Lock()
	defer k.download.Unlock()
	return k.fetch(ctx)
}

var errNoKeys = errors.New("key set unavailable, no keys downloaded yet")

func (k *KeySet) lookup(kid string) *rsa.PublicKey {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	return k.keys[kid]
}

func (k *KeySet) size() int {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	return len(k.keys)
}

// mayDownload reports whether the refresh rate limit allows another download
func (k *KeySet) mayDownload() bool {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	return k.lastAttempt.IsZero() || k.now().Sub(k.lastAttempt) >= k.refreshRateLimit
}

// expired reports whether the keys are older than the TTL and may be downloaded again
func (k *KeySet) expired() bool {
	k.mutex.RLock()
	stale := k.now().Sub(k.fetchedAt) > k.ttl
	k.mutex.RUnlock()
	return stale && k.mayDownload()
}

// update runs one download at a time. A caller that waited for another
// download checks again whether it still needs its own.
func (k *KeySet) update(ctx context.Context, needed func() bool) error {
	k.download.Lock()
	defer k.download.Unlock()
	if !needed() {
		return nil
	}
	return k.load(ctx)
}

// load uses the persisted key set if it is fresh enough, otherwise it downloads it.
func (k *KeySet) load(ctx context.Context) error {
	if k.registry != nil {
		rlog := logger.FromContext(ctx)
		var set jsonWebKeySet
		timestamp, err := k.registry.Read(k.url, &set)
		if err != nil {
			rlog.WithError(err).Errorln("Error 4811: cannot read key set from registry")
		} else if !timestamp.IsZero() && k.now().Sub(timestamp) <= k.ttl {
			if keys := parseKeySet(ctx, &set); len(keys) > 0 {
				k.mutex.Lock()
				k.keys = keys
				k.fetchedAt = timestamp
				k.mutex.Unlock()
				return nil
			}
			// nothing usable, do not hand it to the next process either
			if err = k.registry.Delete(k.url); err != nil {
				rlog.WithError(err).Errorln("Error 4816: cannot delete key set from registry")
			}
		}
	}
	return k.fetch(ctx)
}

// fetch downloads the key set. Must be called with the download mutex held.
func (k *KeySet) fetch(ctx context.Context) error {
	rlog := logger.FromContext(ctx)
	k.mutex.Lock()
	k.lastAttempt = k.now()
	k.mutex.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("cannot create key set request: %w", err)
	}
	res, err := k.httpClient.Do(req)
	if err != nil {
		rlog.WithError(err).Errorf("Error 4812: cannot download key set from %s", k.url)
		return fmt.Errorf("cannot download key set: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		rlog.Errorf("Error 4813: key set download from %s returned %d", k.url, res.StatusCode)
		return fmt.Errorf("key set download returned status %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cannot read key set: %w", err)
	}

	var set jsonWebKeySet
	if err = json.Unmarshal(body, &set); err != nil {
		rlog.WithError(err).Errorf("Error 4814: cannot decode key set from %s", k.url)
		return fmt.Errorf("cannot decode key set: %w", err)
	}

	keys := parseKeySet(ctx, &set)
	k.mutex.Lock()
	k.keys = keys
	k.fetchedAt = k.now()
	k.mutex.Unlock()
	rlog.Debugf("key set: downloaded %d keys from %s", len(keys), k.url)

	if k.registry != nil {
		if err = k.registry.Write(k.url, &set); err != nil {
			rlog.WithError(err).Errorln("Error 4815: cannot persist key set")
		}
	}
	return nil
}

func parseKeySet(ctx context.Context, set *jsonWebKeySet) map[string]*rsa.PublicKey {
	keys := map[string]*rsa.PublicKey{}
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warningln("key set: skipping key", jwk.Kid)
			continue
		}
		keys[jwk.Kid] = key
	}
	return keys
}

// publicKey returns the RSA public key, preferring the certificate chain over
// the bare modulus and exponent
func (j *jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	if len(j.X5c) > 0 {
		cert := "-----BEGIN CERTIFICATE-----\n" + j.X5c[0] + "\n-----END CERTIFICATE-----\n"
		return jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
	}
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 {
		return nil, errors.New("modulus or exponent missing")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
