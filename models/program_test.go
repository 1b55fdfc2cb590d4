package models

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestComputeIdentityProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("identity is deterministic for a fixed (platform, slug)", prop.ForAll(
		func(platform, slug string) bool {
			return ComputeIdentity(platform, slug) == ComputeIdentity(platform, slug)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("identity is case-insensitive", prop.ForAll(
		func(platform, slug string) bool {
			lower := ComputeIdentity(strings.ToLower(platform), strings.ToLower(slug))
			upper := ComputeIdentity(strings.ToUpper(platform), strings.ToUpper(slug))
			return lower == upper
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("identity is 16 hex characters", prop.ForAll(
		func(platform, slug string) bool {
			identity := ComputeIdentity(platform, slug)
			if len(identity) != 16 {
				return false
			}
			for _, c := range identity {
				if !strings.ContainsRune("0123456789abcdef", c) {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestComputeIdentityDistinguishesSlugs(t *testing.T) {
	assert.NotEqual(t,
		ComputeIdentity("hackerone", "acme"),
		ComputeIdentity("hackerone", "acme-corp"))
	assert.NotEqual(t,
		ComputeIdentity("hackerone", "acme"),
		ComputeIdentity("bugcrowd", "acme"))
}

func TestNormalizeDerivesIdentityAndDefaults(t *testing.T) {
	program := Program{
		Platform: "HackerOne",
		Slug:     "Acme",
		Name:     "Acme Corp",
	}
	program.Normalize()

	assert.Equal(t, "hackerone", program.Platform)
	assert.Equal(t, ComputeIdentity("hackerone", "acme"), program.Identity)
	assert.Equal(t, "USD", program.Currency)
}

func TestNormalizeCapsAssets(t *testing.T) {
	assets := make([]string, MaxAssetsPerProgram+15)
	for i := range assets {
		assets[i] = "example.com"
	}

	program := Program{Platform: "bugcrowd", Slug: "big-scope", Assets: assets}
	program.Normalize()

	assert.Len(t, program.Assets, MaxAssetsPerProgram)
}

func TestBountyRange(t *testing.T) {
	low, high := 100, 5000

	cases := []struct {
		name     string
		program  Program
		expected string
	}{
		{
			name:     "vdp only",
			program:  Program{VDPOnly: true, OffersBounties: false},
			expected: "No bounty (VDP)",
		},
		{
			name:     "full range",
			program:  Program{OffersBounties: true, BountyMin: &low, BountyMax: &high},
			expected: "$100 - $5000",
		},
		{
			name:     "max only",
			program:  Program{OffersBounties: true, BountyMax: &high},
			expected: "Up to $5000",
		},
		{
			name:     "min only",
			program:  Program{OffersBounties: true, BountyMin: &low},
			expected: "From $100",
		},
		{
			name:     "paid but amounts unknown",
			program:  Program{OffersBounties: true},
			expected: "Bounty available",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.program.BountyRange())
		})
	}
}

func TestIsNew(t *testing.T) {
	fresh := Program{FirstSeen: time.Now().Add(-24 * time.Hour)}
	assert.True(t, fresh.IsNew())

	old := Program{FirstSeen: time.Now().Add(-30 * 24 * time.Hour)}
	assert.False(t, old.IsNew())

	var unseen Program
	assert.False(t, unseen.IsNew())
}
