package sequence

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Public tracking endpoint paths.
const (
	OpenPath  = "/api/t/open/"
	ClickPath = "/api/t/click/"
)

// TransparentGIF is the 1x1 pixel served for open tracking.
var TransparentGIF = mustDecodeGIF("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

func mustDecodeGIF(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// TrackingData is the payload carried in open and click tracking IDs.
type TrackingData struct {
	LeadID         string `json:"leadId"`
	EmailDay       int    `json:"emailDay"`
	SequenceType   string `json:"sequenceType"`
	EmailID        string `json:"emailId,omitempty"`
	DestinationURL string `json:"destinationUrl,omitempty"`
}

// EncodeTrackingID encodes d as unpadded base64url JSON. The result is the
// unsigned payload; links carry Tracker.Encode output.
func EncodeTrackingID(d TrackingData) string {
	b, _ := json.Marshal(d)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeTrackingID reverses EncodeTrackingID. leadId, emailDay and
// sequenceType must be present with the right JSON types.
func DecodeTrackingID(id string) (TrackingData, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(id, "="))
	if err != nil {
		return TrackingData{}, fmt.Errorf("%w: %v", ErrInvalidTrackingID, err)
	}
	var fields struct {
		LeadID         *string  `json:"leadId"`
		EmailDay       *float64 `json:"emailDay"`
		SequenceType   *string  `json:"sequenceType"`
		EmailID        string   `json:"emailId"`
		DestinationURL string   `json:"destinationUrl"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return TrackingData{}, fmt.Errorf("%w: %v", ErrInvalidTrackingID, err)
	}
	if fields.LeadID == nil || fields.EmailDay == nil || fields.SequenceType == nil {
		return TrackingData{}, ErrInvalidTrackingID
	}
	return TrackingData{
		LeadID:         *fields.LeadID,
		EmailDay:       int(*fields.EmailDay),
		SequenceType:   *fields.SequenceType,
		EmailID:        fields.EmailID,
		DestinationURL: fields.DestinationURL,
	}, nil
}

// Tracker rewrites outgoing HTML for open and click tracking. Tracking IDs
// are "<payload>.<HS256 signature>" so a click link cannot be forged to
// redirect elsewhere or to record hits against another lead.
type Tracker struct {
	baseURL string
	key     []byte
}

// NewTracker creates a tracker whose endpoints live under baseURL and whose
// IDs are signed with secret.
func NewTracker(baseURL, secret string) *Tracker {
	return &Tracker{baseURL: strings.TrimRight(baseURL, "/"), key: []byte(secret)}
}

// Encode signs d into a tracking ID.
func (t *Tracker) Encode(d TrackingData) (string, error) {
	payload := EncodeTrackingID(d)
	sig, err := jwt.SigningMethodHS256.Sign(payload, t.key)
	if err != nil {
		return "", fmt.Errorf("sign tracking id: %w", err)
	}
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode verifies the signature of id and returns its payload.
func (t *Tracker) Decode(id string) (TrackingData, error) {
	i := strings.LastIndexByte(id, '.')
	if i <= 0 {
		return TrackingData{}, fmt.Errorf("%w: unsigned", ErrInvalidTrackingID)
	}
	payload := id[:i]
	sig, err := base64.RawURLEncoding.DecodeString(id[i+1:])
	if err != nil {
		return TrackingData{}, fmt.Errorf("%w: %v", ErrInvalidTrackingID, err)
	}
	if err := jwt.SigningMethodHS256.Verify(payload, sig, t.key); err != nil {
		return TrackingData{}, fmt.Errorf("%w: %v", ErrInvalidTrackingID, err)
	}
	return DecodeTrackingID(payload)
}

// AddPixel inserts the open pixel before the last </body>, or appends it.
func (t *Tracker) AddPixel(html, trackingID string) string {
	pixel := `<img src="` + t.baseURL + OpenPath + trackingID +
		`" width="1" height="1" alt="" style="display:block;width:1px;height:1px;border:0;" />`
	if i := strings.LastIndex(html, "</body>"); i >= 0 {
		return html[:i] + pixel + html[i:]
	}
	return html + pixel
}

var hrefRe = regexp.MustCompile(`(?i)href=(["'])([^"']+)["']`)

func skipTracking(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "unsubscribe") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(u, "#") ||
		strings.Contains(u, ClickPath)
}

// WrapLinks redirects every trackable href through the click endpoint.
// Unsubscribe, mailto:, tel:, fragment and already tracked links are kept.
func (t *Tracker) WrapLinks(html string, base TrackingData) (string, error) {
	var firstErr error
	out := hrefRe.ReplaceAllStringFunc(html, func(match string) string {
		m := hrefRe.FindStringSubmatch(match)
		quote, dest := m[1], m[2]
		if skipTracking(dest) || firstErr != nil {
			return match
		}
		d := base
		d.DestinationURL = dest
		id, err := t.Encode(d)
		if err != nil {
			firstErr = err
			return match
		}
		return "href=" + quote + t.baseURL + ClickPath + id + quote
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Apply wraps links and then adds the open pixel.
func (t *Tracker) Apply(html string, base TrackingData) (string, error) {
	base.DestinationURL = ""
	wrapped, err := t.WrapLinks(html, base)
	if err != nil {
		return "", err
	}
	id, err := t.Encode(base)
	if err != nil {
		return "", err
	}
	return t.AddPixel(wrapped, id), nil
}
