// Package include describes what a deep fetch should load: dot-separated
// relation paths, optional column projections, and per-relation query
// constraints. The loader consumes the parsed tree.
package include

import (
	"strings"

	"github.com/loamdev/loam/query"
)

// Filter constrains the query a resolver issues for one relation.
type Filter func(*query.Builder)

// Include is one eager-load instruction.
type Include struct {
	path    string
	columns []string
	filter  Filter
	// nameOnly filters apply wherever the relation name appears in the
	// tree instead of at one exact path, and do not include anything by
	// themselves.
	nameOnly string
}

// Path includes a relation path such as "posts" or "posts.comments". A
// trailing ":col1,col2" narrows the projection of the final segment.
func Path(p string) Include {
	path, columns := splitColumns(p)
	return Include{path: path, columns: columns}
}

// Filtered includes a relation path and constrains the query issued for its
// final segment. A filter bound to an exact path wins over one bound to the
// bare relation name.
func Filtered(p string, fn Filter) Include {
	inc := Path(p)
	inc.filter = fn
	return inc
}

// Constrain binds a filter to every occurrence of the named relation in the
// tree. It does not include the relation by itself.
func Constrain(name string, fn Filter) Include {
	return Include{nameOnly: name, filter: fn}
}

func splitColumns(p string) (string, []string) {
	i := strings.LastIndexByte(p, ':')
	if i < 0 {
		return p, nil
	}
	var cols []string
	for _, c := range strings.Split(p[i+1:], ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return p[:i], cols
}

// Node is one relation in the resolved include tree.
type Node struct {
	Name     string
	Path     string // full dot path from the root
	Columns  []string
	Children []*Node

	filter Filter
}

// Apply runs the node's resolved filter, if any, against the builder.
func (n *Node) Apply(b *query.Builder) {
	if n.filter != nil {
		n.filter(b)
	}
}

// Build merges the given instructions into an ordered tree. Sibling order
// follows first mention; overlapping paths share nodes. A node mentioned both
// with and without a projection loads all columns.
func Build(includes ...Include) []*Node {
	var (
		roots   []*Node
		byPath  = make(map[string]*Node)
		byName  = make(map[string]Filter)
		pathed  = make(map[string]Filter)
		ordered []*Node
	)
	for _, inc := range includes {
		if inc.nameOnly != "" {
			if _, dup := byName[inc.nameOnly]; !dup {
				byName[inc.nameOnly] = inc.filter
			}
			continue
		}
		if inc.path == "" {
			continue
		}
		segments := strings.Split(inc.path, ".")
		var (
			parent *Node
			prefix string
		)
		for depth, name := range segments {
			if prefix == "" {
				prefix = name
			} else {
				prefix += "." + name
			}
			node, ok := byPath[prefix]
			if !ok {
				node = &Node{Name: name, Path: prefix}
				byPath[prefix] = node
				ordered = append(ordered, node)
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.Children = append(parent.Children, node)
				}
			}
			terminal := depth == len(segments)-1
			if terminal {
				node.Columns = mergeColumns(ok, node.Columns, inc.columns)
				if inc.filter != nil {
					pathed[prefix] = inc.filter
				}
			} else {
				// An intermediate mention loads the node in full.
				node.Columns = nil
			}
			parent = node
		}
	}
	for _, node := range ordered {
		if fn, ok := pathed[node.Path]; ok {
			node.filter = fn
		} else if fn, ok := byName[node.Name]; ok {
			node.filter = fn
		}
	}
	return roots
}

// mergeColumns combines projections from repeated mentions of one node. An
// unprojected mention means "all columns" and clears any narrowing.
func mergeColumns(existed bool, current, incoming []string) []string {
	if !existed {
		return incoming
	}
	if current == nil || incoming == nil {
		return nil
	}
	for _, c := range incoming {
		found := false
		for _, have := range current {
			if have == c {
				found = true
				break
			}
		}
		if !found {
			current = append(current, c)
		}
	}
	return current
}
