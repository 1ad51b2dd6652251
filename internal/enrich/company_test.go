package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu    sync.Mutex
	names map[string][]string
	calls int
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	names, ok := f.names[addr]
	if !ok {
		return nil, errors.New("no PTR")
	}
	return names, nil
}

func TestCompanyFromHostname(t *testing.T) {
	tests := []struct {
		host string
		name string
		dom  string
	}{
		{"remote.corp.microsoft.com.", "Microsoft", "microsoft.com"},
		{"gw1.acme-legal.co.uk", "Acme Legal", "acme-legal.co.uk"},
		{"host.smith-barnes.law", "Smith Barnes", "smith-barnes.law"},
	}
	for _, tt := range tests {
		c := CompanyFromHostname(tt.host)
		require.NotNil(t, c, tt.host)
		assert.Equal(t, tt.name, c.Name)
		assert.Equal(t, tt.dom, c.Domain)
		assert.Equal(t, "reverse_dns", c.Source)
	}
}

func TestCompanyFromHostnameRejects(t *testing.T) {
	for _, host := range []string{
		"c-73-1-2-3.hsd1.ma.comcast.net",
		"ec2-3-4-5-6.compute-1.amazonaws.com",
		"pool-1-2-3.dynamic.example.com",
		"localhost",
		"mail.www.com",
		"x.io",
	} {
		assert.Nil(t, CompanyFromHostname(host), host)
	}
}

func TestIsPublicIP(t *testing.T) {
	assert.True(t, IsPublicIP("8.8.8.8"))
	assert.True(t, IsPublicIP("2001:4860:4860::8888"))
	for _, ip := range []string{"10.0.0.1", "192.168.1.5", "172.20.0.1", "127.0.0.1", "::1", "fe80::1", "fd00::1", "garbage", ""} {
		assert.False(t, IsPublicIP(ip), ip)
	}
}

func TestLookupCachesHitsAndMisses(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	res := &fakeResolver{names: map[string][]string{
		"203.0.113.7": {"vpn.databender.co."},
	}}
	l := NewLookup(res, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	c := l.Company(ctx, "203.0.113.7")
	require.NotNil(t, c)
	assert.Equal(t, "Databender", c.Name)
	assert.Nil(t, l.Company(ctx, "203.0.113.9"))

	l.Company(ctx, "203.0.113.7")
	l.Company(ctx, "203.0.113.9")
	assert.Equal(t, 2, res.calls, "miss is cached too")
	assert.Equal(t, 2, l.CacheSize())

	now = now.Add(2 * time.Hour)
	l.Company(ctx, "203.0.113.7")
	assert.Equal(t, 3, res.calls, "expired entry refetched")
}

func TestLookupSkipsPrivateIPs(t *testing.T) {
	res := &fakeResolver{}
	l := NewLookup(res, 0, nil)
	assert.Nil(t, l.Company(context.Background(), "10.1.2.3"))
	assert.Equal(t, 0, res.calls)
}
