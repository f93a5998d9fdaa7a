package refdata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrMalformed = errors.New("malformed reference data")

// node is a minimal element tree. encoding/xml's Unmarshal gives up on the
// first mismatched tag, so the loader walks raw tokens and keeps its own
// stack instead.
type node struct {
	name     string
	attrs    map[string]string
	text     strings.Builder // own character data only
	children []*node
}

func (n *node) attr(name string) string {
	return strings.TrimSpace(n.attrs[name])
}

// find returns the first descendant named name, depth first.
func (n *node) find(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if m := c.find(name); m != nil {
			return m
		}
	}
	return nil
}

func (n *node) findAll(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// field is the trimmed text of the first descendant named name, or "".
func (n *node) field(name string) string {
	m := n.find(name)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.text.String())
}

type problems []string

func (p *problems) note(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) err() error {
	if p == nil || len(*p) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(*p, "; "))
}

func buildTree(data []byte) (*node, *problems) {
	perr := &problems{}
	root := &node{}
	stack := []*node{root}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			perr.note("stopped at offset %d: %v", dec.InputOffset(), err)
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)

		case xml.EndElement:
			i := openIndex(stack, t.Name.Local)
			if i < 0 {
				perr.note("stray </%s> ignored", t.Name.Local)
				continue
			}
			for _, unclosed := range stack[i+1:] {
				perr.note("<%s> closed implicitly by </%s>", unclosed.name, t.Name.Local)
			}
			stack = stack[:i]

		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	if len(stack) > 1 {
		perr.note("document ends with <%s> still open", stack[len(stack)-1].name)
	}
	return root, perr
}

// openIndex finds the innermost open element with the given name. The
// synthetic root at index 0 never matches.
func openIndex(stack []*node, name string) int {
	for i := len(stack) - 1; i > 0; i-- {
		if stack[i].name == name {
			return i
		}
	}
	return -1
}
