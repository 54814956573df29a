package alembic

import (
	"fmt"
	"strings"
)

// DescribeNode is one node of the dependency tree produced by
// Container.Describe. The tree is built from provider metadata alone; no
// constructor runs.
type DescribeNode struct {
	Label     string
	Provider  string
	Scope     *Scope // nil means transient
	NoScope   bool   // scope is inherited from the target, not rendered
	Anonymous bool
	Ambiguous bool
	Cycle     bool
	Unknown   bool // key claimed by no provider
	Children  []*DescribeNode
}

// Describe walks provider metadata to produce the dependency tree rooted at
// key. Cycles appear as marker leaves instead of recursing; unknown keys and
// ambiguous/anonymous nodes are marked distinctly.
func (c *containerImpl) Describe(key Key) (*DescribeNode, error) {
	return c.describe(key, newResolveStack()), nil
}

func (c *containerImpl) describe(key Key, path *resolveStack) *DescribeNode {
	if !path.enter(key) {
		return &DescribeNode{Label: keyLabel(key), Cycle: true}
	}
	defer path.leave()

	info, provider, ok := c.describeKey(key)
	if !ok {
		return &DescribeNode{Label: keyLabel(key), Unknown: true}
	}

	node := &DescribeNode{
		Label:     info.Label,
		Provider:  provider,
		Scope:     info.Scope,
		NoScope:   info.InheritsScope,
		Anonymous: info.Anonymous,
		Ambiguous: info.Ambiguous,
	}

	for _, dep := range info.DependsOn {
		node.Children = append(node.Children, c.describe(dep, path))
	}

	return node
}

// describeKey locates the owning provider for key and fetches its metadata.
// The ownership index covers reserved keys; Claims covers parameterized and
// synthetic keys resolved through a base registration.
func (c *containerImpl) describeKey(key Key) (KeyInfo, string, bool) {
	if owner := c.ownerOf(key); owner != nil {
		if info, ok := owner.DescribeKey(key); ok {
			return info, owner.Name(), true
		}
	}

	for _, p := range c.snapshotProviders() {
		if !p.Claims(key) {
			continue
		}

		if info, ok := p.DescribeKey(key); ok {
			return info, p.Name(), true
		}
	}

	return KeyInfo{}, "", false
}

func (c *containerImpl) ownerOf(key Key) Provider {
	lookup := key
	if pk, ok := key.(*ParamKey); ok {
		lookup = pk.Base()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.owners.get(lookup); ok {
		return v.(Provider)
	}

	return nil
}

// String renders the tree with indentation and markers: <transient> for
// uncached nodes, <?> for anonymous or ambiguous ones, <cycle> for cycle
// leaves and <unknown> for unclaimed keys.
func (n *DescribeNode) String() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n *DescribeNode) render(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("    ", depth))
	b.WriteString(n.Label)

	switch {
	case n.Cycle:
		b.WriteString(" <cycle>")
	case n.Unknown:
		b.WriteString(" <unknown>")
	default:
		if n.Anonymous || n.Ambiguous {
			b.WriteString(" <?>")
		}
		if !n.NoScope {
			if n.Scope == nil {
				b.WriteString(" <transient>")
			} else if !n.Scope.singleton {
				fmt.Fprintf(b, " <scope:%s>", n.Scope.Name())
			}
		}
	}

	b.WriteByte('\n')

	for _, child := range n.Children {
		child.render(b, depth+1)
	}
}
