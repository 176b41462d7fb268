// Package turnrest mints short-lived TURN credentials using the coturn
// "TURN REST API" scheme (use-auth-secret / static-auth-secret):
//
//	username   = <unix expiry>:<prefix>:<peer id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// The TURN server recomputes the HMAC and rejects usernames whose expiry has
// passed, so the relay never needs to share state with it.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	// Now defaults to time.Now.
	Now func() time.Time
	// NewPeerID defaults to a random UUID.
	NewPeerID func() string
}

type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
	newID  func() string
}

// Credentials is one TURN username/credential pair.
type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	switch {
	case cfg.SharedSecret == "":
		return nil, errors.New("turnrest: shared secret is required")
	case cfg.TTL < time.Second:
		return nil, errors.New("turnrest: TTL must be at least 1s")
	case cfg.UsernamePrefix == "":
		return nil, errors.New("turnrest: username prefix is required")
	case strings.Contains(cfg.UsernamePrefix, ":"):
		return nil, errors.New("turnrest: username prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewPeerID == nil {
		cfg.NewPeerID = uuid.NewString
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
		newID:  cfg.NewPeerID,
	}, nil
}

// For returns credentials bound to peerID.
func (g *Generator) For(peerID string) (Credentials, error) {
	if peerID == "" {
		return Credentials{}, errors.New("turnrest: peer id is required")
	}
	if strings.Contains(peerID, ":") {
		return Credentials{}, errors.New("turnrest: peer id must not contain ':'")
	}

	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := strconv.FormatInt(expires.Unix(), 10) + ":" + g.prefix + ":" + peerID
	return Credentials{
		Username:   username,
		Credential: Sign(g.secret, username),
		Expires:    expires,
	}, nil
}

// Random returns credentials bound to a freshly generated peer id.
func (g *Generator) Random() (Credentials, error) {
	return g.For(g.newID())
}

// Sign computes the coturn credential for username.
func Sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
