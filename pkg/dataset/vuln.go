package dataset

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// NullLiteral marks absent data inside CSV cells (missing line numbers,
// missing pull-request ids, missing issue lists).
const NullLiteral = "null"

// Location is one group of source lines a vulnerability was reported at.
// An empty group means the detector gave no line information and is
// rendered as the null literal.
type Location []int

// Vulnerability is one vulnerability kind with the source locations it was
// reported at.
type Vulnerability struct {
	Kind      string
	Locations []Location
}

// Entry maps a set of agreeing detectors to the vulnerabilities they found.
//
// A Vulnerabilities cell is a sequence of entries:
//
//	cell      := entry (';' entry)*
//	entry     := detectors ':' vulns
//	detectors := NAME ('|' NAME)*
//	vulns     := vul ('|' vul)*
//	vul       := NAME '(' locs ')'
//	locs      := loc (':' loc)*
//	loc       := NUM ('|' NUM)* | 'null'
//
// The closing parenthesis separates the '|' joining two vulnerabilities from
// the '|' joining two line numbers.
type Entry struct {
	Detectors []string
	Vulns     []Vulnerability
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenName
	tokenNumber
	tokenColon
	tokenPipe
	tokenSemicolon
	tokenLParen
	tokenRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokenName:
		return "NAME"
	case tokenNumber:
		return "NUMBER"
	case tokenColon:
		return "':'"
	case tokenPipe:
		return "'|'"
	case tokenSemicolon:
		return "';'"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	default:
		return "EOF"
	}
}

type token struct {
	kind  tokenKind
	value string
	pos   int
}

type cellPattern struct {
	regex *regexp.Regexp
	kind  tokenKind
}

var cellPatterns = []cellPattern{
	{regexp.MustCompile(`^[0-9]+`), tokenNumber},
	{regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*`), tokenName},
	{regexp.MustCompile(`^:`), tokenColon},
	{regexp.MustCompile(`^\|`), tokenPipe},
	{regexp.MustCompile(`^;`), tokenSemicolon},
	{regexp.MustCompile(`^\(`), tokenLParen},
	{regexp.MustCompile(`^\)`), tokenRParen},
}

func tokenizeCell(cell string) ([]token, error) {
	var tokens []token
	pos := 0

	for pos < len(cell) {
		matched := false

		for _, pattern := range cellPatterns {
			loc := pattern.regex.FindStringIndex(cell[pos:])
			if loc != nil && loc[0] == 0 {
				tokens = append(tokens, token{kind: pattern.kind, value: cell[pos : pos+loc[1]], pos: pos})
				pos += loc[1]
				matched = true
				break
			}
		}

		if !matched {
			return nil, fmt.Errorf("unrecognized character %q at offset %d", cell[pos], pos)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: pos})
	return tokens, nil
}

type cellParser struct {
	tokens []token
	pos    int
}

func (p *cellParser) current() token {
	return p.tokens[p.pos]
}

func (p *cellParser) advance() token {
	tk := p.current()
	p.pos++
	return tk
}

func (p *cellParser) expect(kind tokenKind) (token, error) {
	if p.current().kind != kind {
		return token{}, fmt.Errorf("expected %s at offset %d, got %s", kind, p.current().pos, p.current().kind)
	}
	return p.advance(), nil
}

// ParseCell parses a Vulnerabilities cell. The empty cell is valid and means
// no findings.
func ParseCell(cell string) ([]Entry, error) {
	if cell == "" {
		return nil, nil
	}

	tokens, err := tokenizeCell(cell)
	if err != nil {
		return nil, err
	}

	p := &cellParser{tokens: tokens}

	entry, err := p.parseEntry()
	if err != nil {
		return nil, err
	}
	entries := []Entry{entry}

	for p.current().kind == tokenSemicolon {
		p.advance()
		entry, err = p.parseEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if _, err := p.expect(tokenEOF); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *cellParser) parseEntry() (Entry, error) {
	var entry Entry

	name, err := p.expect(tokenName)
	if err != nil {
		return entry, err
	}
	entry.Detectors = append(entry.Detectors, name.value)

	for p.current().kind == tokenPipe {
		p.advance()
		name, err = p.expect(tokenName)
		if err != nil {
			return entry, err
		}
		entry.Detectors = append(entry.Detectors, name.value)
	}

	if _, err := p.expect(tokenColon); err != nil {
		return entry, err
	}

	vul, err := p.parseVul()
	if err != nil {
		return entry, err
	}
	entry.Vulns = append(entry.Vulns, vul)

	for p.current().kind == tokenPipe {
		p.advance()
		vul, err = p.parseVul()
		if err != nil {
			return entry, err
		}
		entry.Vulns = append(entry.Vulns, vul)
	}

	return entry, nil
}

func (p *cellParser) parseVul() (Vulnerability, error) {
	var vul Vulnerability

	name, err := p.expect(tokenName)
	if err != nil {
		return vul, err
	}
	vul.Kind = name.value

	if _, err := p.expect(tokenLParen); err != nil {
		return vul, err
	}

	loc, err := p.parseLoc()
	if err != nil {
		return vul, err
	}
	vul.Locations = append(vul.Locations, loc)

	for p.current().kind == tokenColon {
		p.advance()
		loc, err = p.parseLoc()
		if err != nil {
			return vul, err
		}
		vul.Locations = append(vul.Locations, loc)
	}

	if _, err := p.expect(tokenRParen); err != nil {
		return vul, err
	}
	return vul, nil
}

func (p *cellParser) parseLoc() (Location, error) {
	if p.current().kind == tokenName {
		tk := p.advance()
		if tk.value != NullLiteral {
			return nil, fmt.Errorf("expected line number or %q at offset %d, got %q", NullLiteral, tk.pos, tk.value)
		}
		return nil, nil
	}

	num, err := p.expect(tokenNumber)
	if err != nil {
		return nil, err
	}

	line, err := strconv.Atoi(num.value)
	if err != nil {
		return nil, fmt.Errorf("invalid line number %q at offset %d", num.value, num.pos)
	}
	loc := Location{line}

	for p.current().kind == tokenPipe {
		// A pipe inside parentheses always joins line numbers.
		p.advance()
		num, err = p.expect(tokenNumber)
		if err != nil {
			return nil, err
		}
		line, err = strconv.Atoi(num.value)
		if err != nil {
			return nil, fmt.Errorf("invalid line number %q at offset %d", num.value, num.pos)
		}
		loc = append(loc, line)
	}

	return loc, nil
}

// FormatCell renders entries back into the cell format. It is the inverse of
// ParseCell for well-formed entries.
func FormatCell(entries []Entry) string {
	var sb strings.Builder

	for i, entry := range entries {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strings.Join(entry.Detectors, "|"))
		sb.WriteByte(':')
		for j, vul := range entry.Vulns {
			if j > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(formatVul(vul))
		}
	}

	return sb.String()
}

func formatVul(vul Vulnerability) string {
	var sb strings.Builder
	sb.WriteString(vul.Kind)
	sb.WriteByte('(')
	if len(vul.Locations) == 0 {
		// The grammar demands at least one location group.
		sb.WriteString(NullLiteral)
	}
	for i, loc := range vul.Locations {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(formatLoc(loc))
	}
	sb.WriteByte(')')
	return sb.String()
}

func formatLoc(loc Location) string {
	if len(loc) == 0 {
		return NullLiteral
	}
	parts := make([]string, len(loc))
	for i, line := range loc {
		parts[i] = strconv.Itoa(line)
	}
	return strings.Join(parts, "|")
}

// canonicalKey is an order-insensitive identity for a finding: two detectors
// reporting the same kind at the same line groups agree even when they list
// the groups or lines in different orders.
func canonicalKey(v Vulnerability) string {
	groups := make([]string, 0, len(v.Locations))
	for _, loc := range v.Locations {
		sorted := append(Location(nil), loc...)
		sort.Ints(sorted)
		groups = append(groups, formatLoc(sorted))
	}
	sort.Strings(groups)
	return v.Kind + "(" + strings.Join(groups, ":") + ")"
}

// GroupFindings folds per-detector findings into cell entries. Findings
// reported identically by several detectors land in one entry naming all of
// them; detector sets are ordered by size, then by the position of their
// members in order. Detectors absent from order are ignored.
func GroupFindings(order []string, byDetector map[string][]Vulnerability) []Entry {
	type group struct {
		mask     int
		exemplar Vulnerability
	}

	groups := make(map[string]*group)
	var keys []string

	for bit, detector := range order {
		for _, vul := range byDetector[detector] {
			key := canonicalKey(vul)
			g, ok := groups[key]
			if !ok {
				g = &group{exemplar: vul}
				groups[key] = g
				keys = append(keys, key)
			}
			g.mask |= 1 << bit
		}
	}

	byMask := make(map[int][]Vulnerability)
	for _, key := range keys {
		g := groups[key]
		byMask[g.mask] = append(byMask[g.mask], g.exemplar)
	}

	masks := make([]int, 0, len(byMask))
	for mask := range byMask {
		masks = append(masks, mask)
	}
	sort.Slice(masks, func(i, j int) bool {
		ci, cj := popcount(masks[i]), popcount(masks[j])
		if ci != cj {
			return ci > cj
		}
		return masks[i] < masks[j]
	})

	entries := make([]Entry, 0, len(masks))
	for _, mask := range masks {
		var entry Entry
		for bit, detector := range order {
			if mask&(1<<bit) != 0 {
				entry.Detectors = append(entry.Detectors, detector)
			}
		}
		vulns := byMask[mask]
		sort.Slice(vulns, func(i, j int) bool {
			return canonicalKey(vulns[i]) < canonicalKey(vulns[j])
		})
		entry.Vulns = vulns
		entries = append(entries, entry)
	}

	return entries
}

func popcount(mask int) int {
	count := 0
	for mask != 0 {
		count += mask & 1
		mask >>= 1
	}
	return count
}
