package extract

import (
	"regexp"
	"strings"
)

// Identifier patterns. A PAN is ten characters, a CIN twenty-one; the
// labeled variants catch documents that prefix the number with its name.
var (
	panPattern = regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)
	cinPattern = regexp.MustCompile(`\b[UL][0-9]{5}[A-Z]{2}[0-9]{4}[A-Z]{3}[0-9]{6}\b`)

	panLabeled = []*regexp.Regexp{
		regexp.MustCompile(`(?i)PAN[:\s]+([A-Z]{5}[0-9]{4}[A-Z])`),
		regexp.MustCompile(`(?i)PAN[:\s]*No[.\s]*[:\s]*([A-Z]{5}[0-9]{4}[A-Z])`),
		regexp.MustCompile(`(?i)Permanent[:\s]+Account[:\s]+Number[:\s]+([A-Z]{5}[0-9]{4}[A-Z])`),
	}
	cinLabeled = []*regexp.Regexp{
		regexp.MustCompile(`(?i)CIN[:\s]+([UL][0-9]{5}[A-Z]{2}[0-9]{4}[A-Z]{3}[0-9]{6})`),
		regexp.MustCompile(`(?i)CIN[:\s]*No[.\s]*[:\s]*([UL][0-9]{5}[A-Z]{2}[0-9]{4}[A-Z]{3}[0-9]{6})`),
		regexp.MustCompile(`(?i)Corporate[:\s]+Identification[:\s]+Number[:\s]+([UL][0-9]{5}[A-Z]{2}[0-9]{4}[A-Z]{3}[0-9]{6})`),
	}
)

// Name patterns. Orders name persons with honorifics and companies either
// through the M/s prefix or a corporate suffix.
var (
	personPattern  = regexp.MustCompile(`\b(?:Shri|Smt\.?|Mr\.?|Ms\.?|Dr\.?)\s+([A-Z][A-Za-z.]+(?:\s+[A-Z][A-Za-z.]+){0,3})`)
	msPattern      = regexp.MustCompile(`\bM/s\.?\s+([A-Z][A-Za-z&.]+(?:\s+[A-Z][A-Za-z&.]+){0,4})`)
	companyPattern = regexp.MustCompile(`\b([A-Z][A-Za-z&.]*(?:\s+[A-Z][A-Za-z&.]*){0,4}\s+(?:Private\s+Limited|Pvt\.?\s+Ltd\.?|Limited|Ltd\.?|LLP))`)
)

var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:residing at|located at|address[:\s]+)([^.;,]*(?:Road|Street|Avenue|Lane|Nagar|Colony|Park|Building|Plot|House|Flat)[^.;,]*)`),
	regexp.MustCompile(`(?i)(?:Registered Office[:\s]+)([^.;,\n]{20,150})`),
	regexp.MustCompile(`(?i)(?:Corporate Office[:\s]+)([^.;,\n]{20,150})`),
}

// Pairing distances, in characters of document text.
const (
	panPairDistance   = 2000
	proximityDistance = 1000
	contextWindow     = 500
)

// Candidate is an entity mention located in the document text.
type Candidate struct {
	Name  string
	Type  string
	Start int
	End   int
}

type span struct {
	value string
	start int
	end   int
}

// FindCandidates locates person and company mentions. Overlapping matches
// keep the first mention of a given name.
func FindCandidates(text string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	add := func(name, typ string, start, end int) {
		name = strings.TrimSpace(strings.Trim(name, ".,"))
		if len(name) < 3 || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		out = append(out, Candidate{Name: name, Type: typ, Start: start, End: end})
	}

	for _, m := range companyPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], "Company", m[2], m[3])
	}
	for _, m := range msPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], "Company", m[2], m[3])
	}
	for _, m := range personPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], "Person", m[2], m[3])
	}
	return out
}

// findPANs returns every PAN in the text with its position, bare and labeled
// forms alike.
func findPANs(text string) []span {
	return findIdentifiers(text, panPattern, panLabeled, 10)
}

// findCINs returns every CIN in the text with its position.
func findCINs(text string) []span {
	return findIdentifiers(text, cinPattern, cinLabeled, 21)
}

func findIdentifiers(text string, bare *regexp.Regexp, labeled []*regexp.Regexp, length int) []span {
	var out []span
	seen := make(map[string]bool)

	for _, m := range bare.FindAllStringIndex(text, -1) {
		v := strings.ToUpper(text[m[0]:m[1]])
		if len(v) == length && !seen[v] {
			seen[v] = true
			out = append(out, span{value: v, start: m[0], end: m[1]})
		}
	}
	for _, re := range labeled {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			v := strings.ToUpper(text[m[2]:m[3]])
			if len(v) == length && !seen[v] {
				seen[v] = true
				out = append(out, span{value: v, start: m[2], end: m[3]})
			}
		}
	}
	return out
}

// FindAddresses returns distinct address strings, capped at 200 characters.
func FindAddresses(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range addressPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			addr := strings.TrimSpace(m[1])
			if len(addr) <= 10 {
				continue
			}
			if len(addr) > 200 {
				addr = addr[:200]
			}
			if seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// nearestPAN pairs a candidate with the closest PAN within panPairDistance.
func nearestPAN(cand Candidate, pans []span) string {
	best := ""
	bestDist := panPairDistance
	center := (cand.Start + cand.End) / 2
	for _, p := range pans {
		dist := abs(center - (p.start+p.end)/2)
		if dist < bestDist {
			bestDist = dist
			best = p.value
		}
	}
	return best
}

// nearestCIN pairs a candidate with a CIN appearing in its context window or
// within proximityDistance of the mention.
func nearestCIN(cand Candidate, context string, cins []span) string {
	for _, c := range cins {
		if strings.Contains(context, c.value) {
			return c.value
		}
	}
	for _, c := range cins {
		if abs(cand.Start-c.start) < proximityDistance {
			return c.value
		}
	}
	return ""
}

// matchAddress associates an address with a candidate when they share a name
// word or the address appears in the candidate's context.
func matchAddress(cand Candidate, context string, addresses []string) string {
	words := strings.Fields(strings.ToLower(cand.Name))
	for _, addr := range addresses {
		lower := strings.ToLower(addr)
		for _, w := range words {
			if len(w) > 2 && strings.Contains(lower, w) {
				return addr
			}
		}
	}
	for _, addr := range addresses {
		probe := addr
		if len(probe) > 50 {
			probe = probe[:50]
		}
		if strings.Contains(context, probe) {
			return addr
		}
	}
	return ""
}

// Context returns the text surrounding a candidate mention.
func Context(text string, cand Candidate, window int) string {
	start := cand.Start - window
	if start < 0 {
		start = 0
	}
	end := cand.End + window
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
