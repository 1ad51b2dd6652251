package sequence

import (
	"encoding/base64"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingIDRoundTrip(t *testing.T) {
	in := TrackingData{LeadID: "l-1", EmailDay: 7, SequenceType: "assessment", EmailID: "e-1", DestinationURL: "https://databender.co/x?a=1&b=2"}
	id := EncodeTrackingID(in)
	assert.NotContains(t, id, "=")
	assert.NotContains(t, id, "+")

	out, err := DecodeTrackingID(id)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeTrackingIDRequiresFields(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	bad := []string{
		"!!!",
		enc("not json"),
		enc(`{"emailDay":0,"sequenceType":"assessment"}`),
		enc(`{"leadId":"l","sequenceType":"assessment"}`),
		enc(`{"leadId":"l","emailDay":"2","sequenceType":"assessment"}`),
		enc(`{"leadId":5,"emailDay":2,"sequenceType":"assessment"}`),
	}
	for _, id := range bad {
		_, err := DecodeTrackingID(id)
		assert.ErrorIs(t, err, ErrInvalidTrackingID, id)
	}

	d, err := DecodeTrackingID(enc(`{"leadId":"l","emailDay":0,"sequenceType":"cold-cre"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, d.EmailDay)
}

func TestTrackerSignsIDs(t *testing.T) {
	tr := NewTracker("https://databender.co", "test-secret")
	in := TrackingData{LeadID: "l-1", EmailDay: 2, SequenceType: "assessment", DestinationURL: "https://databender.co/contact"}

	id, err := tr.Encode(in)
	require.NoError(t, err)
	out, err := tr.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	t.Run("unsigned payload", func(t *testing.T) {
		_, err := tr.Decode(EncodeTrackingID(in))
		assert.ErrorIs(t, err, ErrInvalidTrackingID)
	})
	t.Run("forged destination", func(t *testing.T) {
		forged := in
		forged.DestinationURL = "https://evil.example/phish"
		sig := id[strings.LastIndexByte(id, '.'):]
		_, err := tr.Decode(EncodeTrackingID(forged) + sig)
		assert.ErrorIs(t, err, ErrInvalidTrackingID)
	})
	t.Run("other secret", func(t *testing.T) {
		_, err := NewTracker("https://databender.co", "other").Decode(id)
		assert.ErrorIs(t, err, ErrInvalidTrackingID)
	})
	t.Run("bad signature encoding", func(t *testing.T) {
		_, err := tr.Decode(EncodeTrackingID(in) + ".!!")
		assert.ErrorIs(t, err, ErrInvalidTrackingID)
	})
}

func TestTransparentGIF(t *testing.T) {
	assert.Len(t, TransparentGIF, 43)
	assert.Equal(t, "GIF89a", string(TransparentGIF[:6]))
}

func TestAddPixel(t *testing.T) {
	tr := NewTracker("https://databender.co/", "test-secret")
	out := tr.AddPixel("<html><body><p>hi</p></body></html>", "abc")
	assert.Equal(t, `<html><body><p>hi</p><img src="https://databender.co/api/t/open/abc" width="1" height="1" alt="" style="display:block;width:1px;height:1px;border:0;" /></body></html>`, out)

	out = tr.AddPixel("<p>fragment</p>", "abc")
	assert.True(t, strings.HasPrefix(out, "<p>fragment</p><img "))
}

func TestWrapLinks(t *testing.T) {
	tr := NewTracker("https://databender.co", "test-secret")
	html := `<a href="https://databender.co/contact">Book</a>` +
		`<a href='https://example.com/case'>Case</a>` +
		`<a href="https://databender.co/api/unsubscribe?token=x">Unsubscribe</a>` +
		`<a href="mailto:grant@databender.co">Mail</a>` +
		`<a href="TEL:+15551234567">Call</a>` +
		`<a href="#top">Top</a>` +
		`<a href="https://databender.co/api/t/click/abc">Tracked</a>`

	out, err := tr.WrapLinks(html, TrackingData{LeadID: "l-1", EmailDay: 2, SequenceType: "assessment"})
	require.NoError(t, err)

	re := regexp.MustCompile(`href=(["'])https://databender\.co/api/t/click/([A-Za-z0-9_.-]+)["']`)
	matches := re.FindAllStringSubmatch(out, -1)
	require.Len(t, matches, 3)

	first, err := tr.Decode(matches[0][2])
	require.NoError(t, err)
	assert.Equal(t, "https://databender.co/contact", first.DestinationURL)
	assert.Equal(t, 2, first.EmailDay)

	assert.Equal(t, "'", matches[1][1])
	second, err := tr.Decode(matches[1][2])
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/case", second.DestinationURL)

	assert.Equal(t, "abc", matches[2][2])
	assert.Contains(t, out, `href="https://databender.co/api/unsubscribe?token=x"`)
	assert.Contains(t, out, `href="mailto:grant@databender.co"`)
	assert.Contains(t, out, `href="TEL:+15551234567"`)
	assert.Contains(t, out, `href="#top"`)
}

func TestApplyAddsPixelWithoutDestination(t *testing.T) {
	tr := NewTracker("https://databender.co", "test-secret")
	out, err := tr.Apply(`<body><a href="https://x.io">x</a></body>`, TrackingData{LeadID: "l", EmailDay: 0, SequenceType: "assessment", DestinationURL: "ignored"})
	require.NoError(t, err)

	m := regexp.MustCompile(`/api/t/open/([A-Za-z0-9_.-]+)"`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	d, err := tr.Decode(m[1])
	require.NoError(t, err)
	assert.Empty(t, d.DestinationURL)
	assert.Contains(t, out, "/api/t/click/")
}
