// Copyright 2024 rg0now. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dag implements an append-only directed acyclic multigraph over small integer node
// handles. Nodes are numbered in the order they are added, edges are kept in insertion order and
// an edge that would close a cycle is rejected.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

var ErrCycle = errors.New("edge would create a cycle")

type Graph struct {
	children [][]int
	parents  [][]int
	edges    int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode adds a node and returns its handle.
func (g *Graph) AddNode() int {
	g.children = append(g.children, nil)
	g.parents = append(g.parents, nil)
	return len(g.children) - 1
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.children) }

// EdgeCount returns the number of edges, duplicates included.
func (g *Graph) EdgeCount() int { return g.edges }

func (g *Graph) HasNode(id int) bool {
	return id >= 0 && id < len(g.children)
}

// AddEdge adds an edge from -> to. Parallel edges are allowed, self loops and cycles are not.
func (g *Graph) AddEdge(from, to int) error {
	if !g.HasNode(from) {
		return fmt.Errorf("unknown node %d", from)
	}
	if !g.HasNode(to) {
		return fmt.Errorf("unknown node %d", to)
	}
	if from == to || g.Reachable(to, from) {
		return fmt.Errorf("%d -> %d: %w", from, to, ErrCycle)
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	g.edges++
	return nil
}

func (g *Graph) HasEdge(from, to int) bool {
	if !g.HasNode(from) {
		return false
	}
	for _, c := range g.children[from] {
		if c == to {
			return true
		}
	}
	return false
}

// Edges returns the children of a node in edge insertion order.
func (g *Graph) Edges(from int) []int {
	if !g.HasNode(from) {
		return nil
	}
	return append([]int(nil), g.children[from]...)
}

// Parents returns the parents of a node in edge insertion order.
func (g *Graph) Parents(to int) []int {
	if !g.HasNode(to) {
		return nil
	}
	return append([]int(nil), g.parents[to]...)
}

// Reachable reports whether there is a directed path from -> to. A node reaches itself.
func (g *Graph) Reachable(from, to int) bool {
	if !g.HasNode(from) || !g.HasNode(to) {
		return false
	}
	seen := make([]bool, len(g.children))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.children[n]...)
	}
	return false
}

// Ancestors returns the nodes with a path to id, in increasing order.
func (g *Graph) Ancestors(id int) []int {
	if !g.HasNode(id) {
		return nil
	}
	seen := map[int]bool{}
	stack := append([]int(nil), g.parents[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.parents[n]...)
	}
	ret := make([]int, 0, len(seen))
	for n := range seen {
		ret = append(ret, n)
	}
	sort.Ints(ret)
	return ret
}

// Roots returns the nodes without an incoming edge.
func (g *Graph) Roots() []int {
	roots := []int{}
	for i := range g.parents {
		if len(g.parents[i]) == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// Sinks returns the nodes without an outgoing edge.
func (g *Graph) Sinks() []int {
	sinks := []int{}
	for i := range g.children {
		if len(g.children[i]) == 0 {
			sinks = append(sinks, i)
		}
	}
	return sinks
}

// TopoSort returns the nodes so that every parent precedes its children. Ties are broken by the
// node handle.
func (g *Graph) TopoSort() []int {
	indeg := make([]int, len(g.children))
	for i := range g.parents {
		indeg[i] = len(g.parents[i])
	}
	ready := g.Roots()
	ret := make([]int, 0, len(g.children))
	for len(ready) > 0 {
		sort.Ints(ready)
		n := ready[0]
		ready = ready[1:]
		ret = append(ret, n)
		for _, c := range g.children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return ret
}
