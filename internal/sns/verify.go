package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SNS SignatureVersion 1 is SHA1withRSA.
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/pkg/ttlcache"
)

const (
	DefaultCertTTL = time.Hour
	maxCertBytes   = 64 << 10
)

var certHost = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// Fetcher downloads a URL body. *httpretry.RetryClient satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Verifier authenticates SNS messages.
type Verifier struct {
	fetcher Fetcher
	certs   *ttlcache.Cache[string, *rsa.PublicKey]
	topics  map[string]struct{}
}

// NewVerifier creates a verifier. Certificates are cached for ttl using the
// given clock (nil means time.Now). An empty allowedTopics accepts any topic.
func NewVerifier(fetcher Fetcher, ttl time.Duration, clock func() time.Time, allowedTopics []string) *Verifier {
	if ttl <= 0 {
		ttl = DefaultCertTTL
	}
	v := &Verifier{
		fetcher: fetcher,
		certs:   ttlcache.New[string, *rsa.PublicKey](ttl, clock),
		topics:  make(map[string]struct{}, len(allowedTopics)),
	}
	for _, t := range allowedTopics {
		v.topics[t] = struct{}{}
	}
	return v
}

// ValidCertURL reports whether raw is an https URL on an SNS endpoint.
func ValidCertURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return certHost.MatchString(u.Hostname())
}

// ParseAndVerify decodes the body and verifies the message.
func (v *Verifier) ParseAndVerify(ctx context.Context, body []byte) (*Message, error) {
	m, err := ParseMessage(body)
	if err != nil {
		return nil, err
	}
	if err := v.Verify(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Verify checks the topic, certificate URL, signature version and signature.
func (v *Verifier) Verify(ctx context.Context, m *Message) error {
	if len(v.topics) > 0 {
		if _, ok := v.topics[m.TopicArn]; !ok {
			return fmt.Errorf("%w: %s", ErrTopicNotAllowed, m.TopicArn)
		}
	}
	if !ValidCertURL(m.SigningCertURL) {
		return fmt.Errorf("%w: %s", ErrInvalidCertURL, m.SigningCertURL)
	}
	if m.SignatureVersion != "1" {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, m.SignatureVersion)
	}
	key, err := v.publicKey(ctx, m.SigningCertURL)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad base64", ErrInvalidSignature)
	}
	digest := sha1.Sum([]byte(m.StringToSign())) //nolint:gosec
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) publicKey(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	if key, ok := v.certs.Get(certURL); ok {
		return key, nil
	}
	body, err := v.fetcher.Get(ctx, certURL, maxCertBytes)
	if err != nil {
		logger.Warn("sns certificate fetch failed", "url", certURL, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrCertFetch, err)
	}
	key, err := parseCertKey(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertFetch, err)
	}
	v.certs.Set(certURL, key)
	return key, nil
}

func parseCertKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate key is %T, want RSA", cert.PublicKey)
	}
	return key, nil
}
