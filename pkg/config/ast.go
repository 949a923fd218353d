package config

import (
	"fmt"
	"strings"
)

// ConfigTree is the root of a parsed configuration.
type ConfigTree struct {
	Children []*Node `json:"children,omitempty"`
}

// Node is one statement: its keys followed by either ';' or a block.
type Node struct {
	Keys     []string `json:"keys"`
	Children []*Node  `json:"children,omitempty"`
	IsLeaf   bool     `json:"leaf,omitempty"`
	Line     int      `json:"-"`
	Column   int      `json:"-"`
}

// Name returns the statement keyword.
func (n *Node) Name() string {
	if len(n.Keys) == 0 {
		return ""
	}
	return n.Keys[0]
}

// Value returns the first argument of the statement, or "".
func (n *Node) Value() string {
	if len(n.Keys) < 2 {
		return ""
	}
	return n.Keys[1]
}

// FindChild returns the first child named name.
func (n *Node) FindChild(name string) *Node {
	return findChild(n.Children, name)
}

// FindChildren returns every child named name.
func (n *Node) FindChildren(name string) []*Node {
	return findChildren(n.Children, name)
}

// FindChild returns the first top-level statement named name.
func (t *ConfigTree) FindChild(name string) *Node {
	return findChild(t.Children, name)
}

// FindChildren returns every top-level statement named name.
func (t *ConfigTree) FindChildren(name string) []*Node {
	return findChildren(t.Children, name)
}

func findChild(nodes []*Node, name string) *Node {
	for _, n := range nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

func findChildren(nodes []*Node, name string) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.Name() == name {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy of the tree.
func (t *ConfigTree) Clone() *ConfigTree {
	if t == nil {
		return &ConfigTree{}
	}
	return &ConfigTree{Children: cloneNodes(t.Children)}
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = &Node{
			Keys:     append([]string(nil), n.Keys...),
			Children: cloneNodes(n.Children),
			IsLeaf:   n.IsLeaf,
			Line:     n.Line,
			Column:   n.Column,
		}
	}
	return out
}

// Format renders the tree in hierarchical syntax.
func (t *ConfigTree) Format() string {
	var sb strings.Builder
	for _, n := range t.Children {
		formatNode(&sb, n, 0)
	}
	return sb.String()
}

func formatNode(sb *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("    ", depth)
	sb.WriteString(indent)
	sb.WriteString(joinKeys(n.Keys))
	if n.IsLeaf {
		sb.WriteString(";\n")
		return
	}
	sb.WriteString(" {\n")
	for _, c := range n.Children {
		formatNode(sb, c, depth+1)
	}
	sb.WriteString(indent)
	sb.WriteString("}\n")
}

// FormatSet renders the tree as flat "set" commands, one per leaf.
func (t *ConfigTree) FormatSet() string {
	var sb strings.Builder
	for _, n := range t.Children {
		formatSetNode(&sb, nil, n)
	}
	return sb.String()
}

func formatSetNode(sb *strings.Builder, prefix []string, n *Node) {
	path := append(append([]string(nil), prefix...), n.Keys...)
	if n.IsLeaf || len(n.Children) == 0 {
		sb.WriteString("set ")
		sb.WriteString(joinKeys(path))
		sb.WriteByte('\n')
		return
	}
	for _, c := range n.Children {
		formatSetNode(sb, path, c)
	}
}

func joinKeys(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quoteKey(k)
	}
	return strings.Join(quoted, " ")
}

func quoteKey(k string) string {
	if k == "" || strings.ContainsAny(k, " \t\n{};\"#") {
		return `"` + strings.ReplaceAll(k, `"`, `\"`) + `"`
	}
	return k
}

// schemaNode describes one statement keyword: how many arguments follow it
// and, for blocks, which statements it may contain.
type schemaNode struct {
	args     int
	children map[string]*schemaNode
}

func leaf() *schemaNode { return &schemaNode{args: 1} }

func block(args int, children map[string]*schemaNode) *schemaNode {
	return &schemaNode{args: args, children: children}
}

var schema = map[string]*schemaNode{
	"system": block(0, map[string]*schemaNode{
		"host-name": leaf(),
		"syslog": block(0, map[string]*schemaNode{
			"host":     leaf(),
			"port":     leaf(),
			"facility": leaf(),
			"severity": leaf(),
		}),
		"metrics": block(0, map[string]*schemaNode{
			"listen": leaf(),
		}),
	}),
	"parser": block(0, map[string]*schemaNode{
		"variant":  leaf(),
		"backend":  leaf(),
		"device":   leaf(),
		"pin-path": leaf(),
	}),
	"rules": block(0, map[string]*schemaNode{
		"rule": block(1, map[string]*schemaNode{
			"description":  leaf(),
			"match-type":   leaf(),
			"match":        leaf(),
			"offset":       leaf(),
			"action":       leaf(),
			"link-to":      leaf(),
			"dma-channels": leaf(),
		}),
	}),
}

// SetPath creates or replaces the statement named by path, creating the
// enclosing blocks as needed.
func (t *ConfigTree) SetPath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	children := &t.Children
	level := schema
	for i := 0; i < len(path); {
		name := path[i]
		s, ok := level[name]
		if !ok {
			return fmt.Errorf("unknown statement %q at %s", name, joinKeys(path[:i+1]))
		}
		end := i + 1 + s.args
		if end > len(path) {
			return fmt.Errorf("statement %q needs %d argument(s)", name, s.args)
		}
		keys := path[i:end]

		if s.children == nil {
			if end != len(path) {
				return fmt.Errorf("unexpected %q after %s", path[end], joinKeys(keys))
			}
			// Leaves hold a single value: replace any previous one.
			if n := findChild(*children, name); n != nil {
				n.Keys = append([]string(nil), keys...)
				return nil
			}
			*children = append(*children, &Node{Keys: append([]string(nil), keys...), IsLeaf: true})
			return nil
		}

		n := findByKeys(*children, keys)
		if n == nil {
			n = &Node{Keys: append([]string(nil), keys...)}
			*children = append(*children, n)
		}
		children = &n.Children
		level = s.children
		i = end
	}
	return nil
}

// DeletePath removes the statement named by path. A leaf may be named by
// its keyword alone. Blocks left empty are removed as well.
func (t *ConfigTree) DeletePath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	if !deleteIn(&t.Children, schema, path) {
		return fmt.Errorf("statement not found: %s", joinKeys(path))
	}
	return nil
}

func deleteIn(children *[]*Node, level map[string]*schemaNode, path []string) bool {
	name := path[0]
	s, ok := level[name]
	if !ok {
		return false
	}
	end := min(1+s.args, len(path))
	keys := path[:end]

	for i, n := range *children {
		if !keysMatch(n, keys, s.children == nil) {
			continue
		}
		if end == len(path) {
			*children = append((*children)[:i], (*children)[i+1:]...)
			return true
		}
		if s.children == nil || !deleteIn(&n.Children, s.children, path[end:]) {
			return false
		}
		if len(n.Children) == 0 {
			*children = append((*children)[:i], (*children)[i+1:]...)
		}
		return true
	}
	return false
}

func keysMatch(n *Node, keys []string, isLeaf bool) bool {
	if isLeaf && len(keys) == 1 {
		return n.Name() == keys[0]
	}
	if len(n.Keys) != len(keys) {
		return false
	}
	for i := range keys {
		if n.Keys[i] != keys[i] {
			return false
		}
	}
	return true
}

func findByKeys(nodes []*Node, keys []string) *Node {
	for _, n := range nodes {
		if !n.IsLeaf && keysMatch(n, keys, false) {
			return n
		}
	}
	return nil
}
