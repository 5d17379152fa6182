package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderText = `WTM/GR/2026/15 dated 12.08.2026
In the matter of Acme Securities Limited (PAN: ABCDE1234F,
CIN: U65990MH2010PLC123456), Registered Office: 4th Floor Apex Towers
Bandra Kurla Complex Mumbai 400051, the Board observed serious
violation of the PFUTP Regulations. The Noticee Shri Rakesh Kumar
(PAN AFZPK7190K) residing at 12 Marine Drive Road Mumbai was found
to have engaged in manipulation of the scrip.`

func TestFindCandidates(t *testing.T) {
	cands := FindCandidates(orderText)
	names := make(map[string]string)
	for _, c := range cands {
		names[c.Name] = c.Type
	}
	assert.Equal(t, "Company", names["Acme Securities Limited"])
	assert.Equal(t, "Person", names["Rakesh Kumar"])
}

func TestFindIdentifiers(t *testing.T) {
	pans := findPANs(orderText)
	require.Len(t, pans, 2)
	values := []string{pans[0].value, pans[1].value}
	assert.Contains(t, values, "ABCDE1234F")
	assert.Contains(t, values, "AFZPK7190K")

	cins := findCINs(orderText)
	require.Len(t, cins, 1)
	assert.Equal(t, "U65990MH2010PLC123456", cins[0].value)
}

func TestFindIdentifiersLabeledOnly(t *testing.T) {
	// Lowercase identifiers defeat the bare pattern; the labeled forms are
	// case-insensitive and still catch them.
	text := "permanent account number abcde1234f of the noticee, pan no. xyzab9876c"
	pans := findPANs(text)
	require.Len(t, pans, 2)
	values := []string{pans[0].value, pans[1].value}
	assert.Contains(t, values, "ABCDE1234F")
	assert.Contains(t, values, "XYZAB9876C")
}

func TestFindAddresses(t *testing.T) {
	addrs := FindAddresses(orderText)
	require.NotEmpty(t, addrs)
	joined := ""
	for _, a := range addrs {
		joined += a + "\n"
	}
	assert.Contains(t, joined, "Marine Drive Road")
	assert.Contains(t, joined, "Apex Towers")
}

func TestNearestPANPrefersClosest(t *testing.T) {
	pans := []span{
		{value: "AAAAA1111A", start: 0, end: 10},
		{value: "BBBBB2222B", start: 490, end: 500},
	}
	cand := Candidate{Name: "X", Start: 480, End: 488}
	assert.Equal(t, "BBBBB2222B", nearestPAN(cand, pans))
}

func TestNearestPANRespectsDistanceBound(t *testing.T) {
	pans := []span{{value: "AAAAA1111A", start: 5000, end: 5010}}
	cand := Candidate{Name: "X", Start: 0, End: 8}
	assert.Empty(t, nearestPAN(cand, pans))
}

func TestContextWindowClampsToText(t *testing.T) {
	text := "short text with a mention here"
	cand := Candidate{Name: "mention", Start: 18, End: 25}
	assert.Equal(t, text, Context(text, cand, 1000))
}
