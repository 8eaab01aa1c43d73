/*
Package testidp provides a fake identity provider for tests.

It generates an RSA key pair, publishes the public key as a JSON Web Key Set on a
local httptest server and signs access tokens with the private key, so the real
verification path of package access can be exercised without a real issuer.
*/
package testidp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Audience is the default audience of issued tokens
const Audience = "drinks"

// JWKSPath is the path of the published key set
const JWKSPath = "/.well-known/jwks.json"

type signingKey struct {
	kid  string
	key  *rsa.PrivateKey
	cert []byte
}

// IdentityProvider is a fake token issuer
type IdentityProvider struct {
	server   *httptest.Server
	audience string
	fetches  int32
	down     int32

	mutex     sync.RWMutex
	current   signingKey
	published []signingKey
	withX5c   bool
}

// New starts a new identity provider. Close it when done.
func New() *IdentityProvider {
	p := &IdentityProvider{audience: Audience, withX5c: true}
	p.current = newSigningKey()
	p.published = []signingKey{p.current}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveKeySet))
	return p
}

// WithoutCertificates makes the key set publish bare modulus and exponent only
func (p *IdentityProvider) WithoutCertificates() *IdentityProvider {
	p.mutex.Lock()
	p.withX5c = false
	p.mutex.Unlock()
	return p
}

func newSigningKey() signingKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "testidp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	cert, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	return signingKey{kid: uuid.NewString(), key: key, cert: cert}
}

// Close shuts down the key set server
func (p *IdentityProvider) Close() {
	p.server.Close()
}

// Issuer returns the issuer of all tokens, "{server url}/"
func (p *IdentityProvider) Issuer() string {
	return p.server.URL + "/"
}

// Audience returns the audience of issued tokens
func (p *IdentityProvider) Audience() string {
	return p.audience
}

// KeySetURL returns the url of the published key set
func (p *IdentityProvider) KeySetURL() string {
	return p.server.URL + JWKSPath
}

// KeyID returns the id of the current signing key
func (p *IdentityProvider) KeyID() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.current.kid
}

// Fetches returns how often the key set has been downloaded
func (p *IdentityProvider) Fetches() int {
	return int(atomic.LoadInt32(&p.fetches))
}

// SetUnavailable makes the key set server answer 502 Bad Gateway until it is
// called again with false. Downloads are still counted.
func (p *IdentityProvider) SetUnavailable(down bool) {
	var v int32
	if down {
		v = 1
	}
	atomic.StoreInt32(&p.down, v)
}

// Rotate creates a new signing key. If keepOld is false, the old key is no
// longer published.
func (p *IdentityProvider) Rotate(keepOld bool) {
	next := newSigningKey()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if keepOld {
		p.published = append(p.published, next)
	} else {
		p.published = []signingKey{next}
	}
	p.current = next
}

// Claims returns valid claims for a token with the given permissions, expiring in one hour
func (p *IdentityProvider) Claims(permissions ...string) jwt.MapClaims {
	if permissions == nil {
		permissions = []string{}
	}
	now := time.Now()
	return jwt.MapClaims{
		"iss":         p.Issuer(),
		"sub":         "testidp|" + uuid.NewString(),
		"aud":         []string{p.audience},
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"permissions": permissions,
	}
}

// Token returns a valid signed token with the given permissions
func (p *IdentityProvider) Token(permissions ...string) string {
	return p.Sign(p.Claims(permissions...))
}

// Sign signs arbitrary claims with the current key
func (p *IdentityProvider) Sign(claims jwt.Claims) string {
	return p.SignWithKeyID(p.KeyID(), claims)
}

// SignWithKeyID signs claims with the current key, but puts kid into the header
func (p *IdentityProvider) SignWithKeyID(kid string, claims jwt.Claims) string {
	p.mutex.RLock()
	key := p.current.key
	p.mutex.RUnlock()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		panic(err)
	}
	return signed
}

func (p *IdentityProvider) serveKeySet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != JWKSPath {
		http.NotFound(w, r)
		return
	}
	atomic.AddInt32(&p.fetches, 1)
	if atomic.LoadInt32(&p.down) == 1 {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	p.mutex.RLock()
	keys := []map[string]interface{}{}
	for _, k := range p.published {
		jwk := map[string]interface{}{
			"kid": k.kid,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(k.key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.key.PublicKey.E)).Bytes()),
		}
		if p.withX5c {
			jwk["x5c"] = []string{base64.StdEncoding.EncodeToString(k.cert)}
		}
		keys = append(keys, jwk)
	}
	p.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
}
