package page

import (
	"strings"

	"golang.org/x/net/html"
)

// The recognizer pattern tables only need a small CSS subset: tag, #id,
// .class, attribute tests ([a], [a=v], [a*=v], [a^=v], [a$=v]), descendant
// combinators, and comma lists. That subset is implemented here directly over
// the x/net/html tree rather than pulling in a full selector engine.

type attrTest struct {
	name  string
	op    byte // 0 presence, '=', '*', '^', '$'
	value string
}

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
}

// compound is a descendant chain: the last element must match the node, the
// preceding ones must match ancestors in order.
type compound []simpleSelector

// FindAll returns every node under root matching the selector, in document
// order. Malformed selectors match nothing.
func FindAll(root *html.Node, selector string) []*html.Node {
	compounds := parseSelector(selector)
	if len(compounds) == 0 {
		return nil
	}

	var out []*html.Node
	seen := make(map[*html.Node]bool)
	Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, c := range compounds {
			if c.matches(n) {
				if !seen[n] {
					seen[n] = true
					out = append(out, n)
				}
				break
			}
		}
		return true
	})
	return out
}

func (c compound) matches(n *html.Node) bool {
	last := len(c) - 1
	if !c[last].matches(n) {
		return false
	}
	// Remaining parts must match ancestors, closest-first order is not
	// required for descendant combinators, just existence in order.
	idx := last - 1
	for anc := n.Parent; anc != nil && idx >= 0; anc = anc.Parent {
		if anc.Type == html.ElementNode && c[idx].matches(anc) {
			idx--
		}
	}
	return idx < 0
}

func (s simpleSelector) matches(n *html.Node) bool {
	if s.tag != "" && s.tag != "*" && !strings.EqualFold(n.Data, s.tag) {
		return false
	}
	if s.id != "" && Attr(n, "id") != s.id {
		return false
	}
	for _, class := range s.classes {
		if !HasClass(n, class) {
			return false
		}
	}
	for _, at := range s.attrs {
		val := Attr(n, at.name)
		switch at.op {
		case 0:
			if !hasAttr(n, at.name) {
				return false
			}
		case '=':
			if val != at.value {
				return false
			}
		case '*':
			if !strings.Contains(val, at.value) {
				return false
			}
		case '^':
			if !strings.HasPrefix(val, at.value) {
				return false
			}
		case '$':
			if !strings.HasSuffix(val, at.value) {
				return false
			}
		}
	}
	return true
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

func parseSelector(selector string) []compound {
	var compounds []compound
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var chain compound
		ok := true
		for _, piece := range strings.Fields(part) {
			simple, valid := parseSimple(piece)
			if !valid {
				ok = false
				break
			}
			chain = append(chain, simple)
		}
		if ok && len(chain) > 0 {
			compounds = append(compounds, chain)
		}
	}
	return compounds
}

func parseSimple(piece string) (simpleSelector, bool) {
	var s simpleSelector
	i := 0
	readName := func() string {
		start := i
		for i < len(piece) && piece[i] != '#' && piece[i] != '.' && piece[i] != '[' {
			i++
		}
		return piece[start:i]
	}

	if i < len(piece) && piece[i] != '#' && piece[i] != '.' && piece[i] != '[' {
		s.tag = strings.ToLower(readName())
	}
	for i < len(piece) {
		switch piece[i] {
		case '#':
			i++
			s.id = readName()
		case '.':
			i++
			s.classes = append(s.classes, readName())
		case '[':
			end := strings.IndexByte(piece[i:], ']')
			if end < 0 {
				return s, false
			}
			test, ok := parseAttrTest(piece[i+1 : i+end])
			if !ok {
				return s, false
			}
			s.attrs = append(s.attrs, test)
			i += end + 1
		default:
			return s, false
		}
	}
	if s.tag == "" && s.id == "" && len(s.classes) == 0 && len(s.attrs) == 0 {
		return s, false
	}
	return s, true
}

func parseAttrTest(body string) (attrTest, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return attrTest{}, false
	}
	for _, op := range []string{"*=", "^=", "$=", "="} {
		if idx := strings.Index(body, op); idx > 0 {
			value := strings.Trim(body[idx+len(op):], `"'`)
			return attrTest{
				name:  strings.TrimSpace(body[:idx]),
				op:    op[0],
				value: value,
			}, true
		}
	}
	return attrTest{name: body}, true
}
