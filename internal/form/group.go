package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Group is an ordered set of named nodes
type Group struct {
	names       []string
	children    map[string]Node
	serverError string
}

// NewGroup creates an empty group
func NewGroup() *Group {
	return &Group{children: make(map[string]Node)}
}

// Add inserts n under name, replacing any node already registered there
// while keeping its position
func (g *Group) Add(name string, n Node) {
	if _, exists := g.children[name]; !exists {
		g.names = append(g.names, name)
	}
	g.children[name] = n
}

// Remove deletes the node registered under name
func (g *Group) Remove(name string) {
	if _, exists := g.children[name]; !exists {
		return
	}
	delete(g.children, name)
	for i, n := range g.names {
		if n == name {
			g.names = append(g.names[:i], g.names[i+1:]...)
			break
		}
	}
}

// Has reports whether a node is registered under name
func (g *Group) Has(name string) bool {
	_, ok := g.children[name]
	return ok
}

// Names returns child names in insertion order
func (g *Group) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Len returns the number of children
func (g *Group) Len() int {
	return len(g.names)
}

// Get returns the node under name, or nil
func (g *Group) Get(name string) Node {
	return g.children[name]
}

// Control returns the control under name, or nil when absent or not a control
func (g *Group) Control(name string) *Control {
	c, _ := g.children[name].(*Control)
	return c
}

// Group returns the sub-group under name, or nil when absent or not a group
func (g *Group) Group(name string) *Group {
	sub, _ := g.children[name].(*Group)
	return sub
}

// Find walks a dotted path such as "parameters.length"
func (g *Group) Find(path string) Node {
	var cur Node = g
	for _, part := range strings.Split(path, ".") {
		grp, ok := cur.(*Group)
		if !ok {
			return nil
		}
		cur = grp.Get(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Value returns the raw values of all controls, nesting sub-groups
func (g *Group) Value() map[string]any {
	out := make(map[string]any, len(g.names))
	for _, name := range g.names {
		switch n := g.children[name].(type) {
		case *Control:
			out[name] = n.Value()
		case *Group:
			out[name] = n.Value()
		}
	}
	return out
}

// SetServerError attaches a backend message to the group itself
func (g *Group) SetServerError(msg string) {
	g.serverError = msg
}

// ServerError returns the group level backend message
func (g *Group) ServerError() string {
	return g.serverError
}

// ClearServerErrors implements Node
func (g *Group) ClearServerErrors() {
	g.serverError = ""
	for _, n := range g.children {
		n.ClearServerErrors()
	}
}

// Valid implements Node
func (g *Group) Valid() bool {
	if g.serverError != "" {
		return false
	}
	for _, n := range g.children {
		if !n.Valid() {
			return false
		}
	}
	return true
}

// MarkAllTouched implements Node
func (g *Group) MarkAllTouched() {
	for _, n := range g.children {
		n.MarkAllTouched()
	}
}

// Errors returns the error maps of invalid controls keyed by dotted path
func (g *Group) Errors() map[string]map[string]string {
	out := make(map[string]map[string]string)
	g.collect("", out)
	return out
}

func (g *Group) collect(prefix string, out map[string]map[string]string) {
	if g.serverError != "" {
		key := strings.TrimSuffix(prefix, ".")
		out[key] = map[string]string{ServerErrorKey: g.serverError}
	}
	for _, name := range g.names {
		switch n := g.children[name].(type) {
		case *Control:
			if errs := n.Errors(); errs != nil {
				out[prefix+name] = errs
			}
		case *Group:
			n.collect(prefix+name+".", out)
		}
	}
}

// Err folds every error of the group into one error, one entry per path
// and message, in path order. Nil when the group is valid.
func (g *Group) Err() error {
	errs := g.Errors()
	paths := make([]string, 0, len(errs))
	for p := range errs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var err error
	for _, p := range paths {
		keys := make([]string, 0, len(errs[p]))
		for k := range errs[p] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p == "" {
				err = multierr.Append(err, errors.New(errs[p][k]))
				continue
			}
			err = multierr.Append(err, fmt.Errorf("%s: %s", p, errs[p][k]))
		}
	}
	return err
}
