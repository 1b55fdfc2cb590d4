package scrapers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonnylitten/bountyping/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yesWeHackDirectoryFixture = `<!DOCTYPE html>
<html>
<body>
  <div class="programs">
    <div class="program-card">
      <h2>Acme Sécurité</h2>
      <a href="/programs/acme-security">View program</a>
      <span class="reward">€50 - €5,000</span>
    </div>
    <div class="program-card">
      <h2>Disclosure Only</h2>
      <a href="/programs/disclosure-only">View program</a>
      <span class="reward">Responsible disclosure</span>
      <span class="badge">VDP</span>
    </div>
    <div class="program-card">
      <h2>Broken Card</h2>
      <a href="/about">Not a program link</a>
    </div>
  </div>
</body>
</html>`

func newYesWeHackTestServer(t *testing.T, html string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/programs", r.URL.Path)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}))
}

func TestYesWeHackParsesDirectoryCards(t *testing.T) {
	server := newYesWeHackTestServer(t, yesWeHackDirectoryFixture)
	defer server.Close()

	scraper := NewYesWeHackScraper(testOptions(server.URL))
	programs, err := scraper.FetchPrograms(context.Background())
	require.NoError(t, err)

	// The card without a /programs/ link is skipped.
	require.Len(t, programs, 2)

	paid := programs[0]
	assert.Equal(t, "yeswehack", paid.Platform)
	assert.Equal(t, "acme-security", paid.Slug)
	assert.Equal(t, models.ComputeIdentity("yeswehack", "acme-security"), paid.Identity)
	assert.Equal(t, "Acme Sécurité", paid.Name)
	assert.Equal(t, server.URL+"/programs/acme-security", paid.URL)
	require.NotNil(t, paid.BountyMin)
	require.NotNil(t, paid.BountyMax)
	assert.Equal(t, 50, *paid.BountyMin)
	assert.Equal(t, 5000, *paid.BountyMax)
	assert.Equal(t, "EUR", paid.Currency)
	assert.True(t, paid.OffersBounties)
	assert.False(t, paid.VDPOnly)

	vdp := programs[1]
	assert.Equal(t, "disclosure-only", vdp.Slug)
	assert.True(t, vdp.VDPOnly)
	assert.False(t, vdp.OffersBounties)
	assert.Nil(t, vdp.BountyMax)
}

func TestYesWeHackNoCardsFailsTheFetch(t *testing.T) {
	server := newYesWeHackTestServer(t, `<html><body><p>Maintenance</p></body></html>`)
	defer server.Close()

	scraper := NewYesWeHackScraper(testOptions(server.URL))
	_, err := scraper.FetchPrograms(context.Background())

	var fetchErr *SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "yeswehack", fetchErr.Platform)
}

func TestYesWeHackFallbackCardSelector(t *testing.T) {
	// Older markup used article.program; extraction falls back to it.
	server := newYesWeHackTestServer(t, `<html><body>
	  <article class="program">
	    <h3>Legacy Markup</h3>
	    <a href="/programs/legacy-markup">Open</a>
	    <span class="bounty-range">$100 - $2,000</span>
	  </article>
	</body></html>`)
	defer server.Close()

	scraper := NewYesWeHackScraper(testOptions(server.URL))
	programs, err := scraper.FetchPrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 1)

	assert.Equal(t, "legacy-markup", programs[0].Slug)
	assert.Equal(t, "Legacy Markup", programs[0].Name)
	assert.Equal(t, "USD", programs[0].Currency)
	require.NotNil(t, programs[0].BountyMin)
	assert.Equal(t, 100, *programs[0].BountyMin)
	require.NotNil(t, programs[0].BountyMax)
	assert.Equal(t, 2000, *programs[0].BountyMax)
}

func TestParseRewardRange(t *testing.T) {
	cases := []struct {
		text string
		min  *int
		max  *int
	}{
		{"", nil, nil},
		{"Responsible disclosure", nil, nil},
		{"€500", nil, intAmount(500)},
		{"€50 - €5,000", intAmount(50), intAmount(5000)},
		{"$1.000 - $10.000", intAmount(1000), intAmount(10000)},
	}

	for _, tc := range cases {
		min, max := parseRewardRange(tc.text)
		assert.Equal(t, tc.min, min, tc.text)
		assert.Equal(t, tc.max, max, tc.text)
	}
}
