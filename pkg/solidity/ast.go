package solidity

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Source couples a Solidity file's text with its compact AST, answering
// line-based location queries for detector findings.
type Source struct {
	Path string

	lines   []string
	offsets []int
	ast     gjson.Result
}

func NewSource(path string, content []byte, ast gjson.Result) *Source {
	lines := strings.Split(string(content), "\n")
	offsets := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		offsets[i] = offset
		offset += len(line) + 1
	}
	return &Source{Path: path, lines: lines, offsets: offsets, ast: ast}
}

// LineText returns the raw text of a 1-based source line.
func (s *Source) LineText(line int) string {
	if line < 1 || line > len(s.lines) {
		return ""
	}
	return s.lines[line-1]
}

// lineSpan returns the byte range [start, end) of a 1-based line, excluding
// the newline.
func (s *Source) lineSpan(line int) (int, int, bool) {
	if line < 1 || line > len(s.lines) {
		return 0, 0, false
	}
	start := s.offsets[line-1]
	return start, start + len(s.lines[line-1]), true
}

// srcSpan parses a node's src attribute, offset:length:fileIndex.
func srcSpan(node gjson.Result) (int, int, bool) {
	parts := strings.SplitN(node.Get("src").String(), ":", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return start, length, true
}

// spanIntersects reports whether a node's source range overlaps a byte
// range. Lines carry leading indentation the node ranges exclude, so
// intersection is the right containment test.
func spanIntersects(node gjson.Result, start, end int) bool {
	nodeStart, nodeLength, ok := srcSpan(node)
	return ok && nodeStart < end && start < nodeStart+nodeLength
}

// ContractNames lists the contracts, libraries and interfaces defined in the
// file, in source order.
func (s *Source) ContractNames() []string {
	var names []string
	s.ast.Get("nodes").ForEach(func(_, node gjson.Result) bool {
		if node.Get("nodeType").String() == "ContractDefinition" {
			names = append(names, node.Get("name").String())
		}
		return true
	})
	return names
}

// EnclosingFunction resolves the contract and function a source line belongs
// to. Constructors are reported as "constructor" and fallback or receive
// functions as the empty name, matching the dataset convention. When the
// line sits inside a contract but outside any function, the contract is
// returned with ok false.
func (s *Source) EnclosingFunction(line int) (contract, function string, ok bool) {
	start, end, valid := s.lineSpan(line)
	if !valid {
		return "", "", false
	}

	s.ast.Get("nodes").ForEach(func(_, node gjson.Result) bool {
		if node.Get("nodeType").String() != "ContractDefinition" || !spanIntersects(node, start, end) {
			return true
		}
		contract = node.Get("name").String()

		node.Get("nodes").ForEach(func(_, member gjson.Result) bool {
			nodeType := member.Get("nodeType").String()
			if nodeType != "FunctionDefinition" && nodeType != "ModifierDefinition" {
				return true
			}
			if !spanIntersects(member, start, end) {
				return true
			}
			function = memberName(member, contract)
			ok = true
			return false
		})
		return false
	})
	return contract, function, ok
}

// memberName normalizes a function node's name. Compilers before 0.5 mark
// constructors by name equality with the contract and fallbacks by an empty
// name instead of a kind attribute.
func memberName(node gjson.Result, contract string) string {
	name := node.Get("name").String()

	switch node.Get("kind").String() {
	case "constructor":
		return "constructor"
	case "fallback", "receive":
		return ""
	}
	if node.Get("isConstructor").Bool() || (name != "" && name == contract) {
		return "constructor"
	}
	return name
}
