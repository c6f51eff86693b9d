// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package linkgraph implements the link graph: bidirectional typed
// links between URI-addressed content, with bounded subgraph traversal on
// top of the Content Graph Store's relational link table.
package linkgraph

import (
	"context"
	"fmt"

	"github.com/northbound/archivist/internal/archiveerr"
	"github.com/northbound/archivist/internal/store"
)

const MaxDepth = 5

// Graph wires the link-graph operations to a Store.
type Graph struct {
	store *store.Store
}

func New(s *store.Store) *Graph {
	return &Graph{store: s}
}

// ContentURI builds the content:// convention URI for an owned row.
func ContentURI(source, kind, id string) string {
	return fmt.Sprintf("content://%s/%s/%s", source, kind, id)
}

// MediaURI builds the media:// convention URI for a content-addressed file.
func MediaURI(sha256Hash string) string {
	return fmt.Sprintf("media://sha256/%s", sha256Hash)
}

// FindLinks returns links touching uri in the given direction, annotated
// with direction relative to uri; linkType filters when non-empty.
func (g *Graph) FindLinks(ctx context.Context, uri, direction, linkType string, limit int) ([]store.Link, error) {
	if direction == "" {
		direction = "both"
	}
	if direction != "outgoing" && direction != "incoming" && direction != "both" {
		return nil, archiveerr.New(archiveerr.KindInvalid, "linkgraph.FindLinks", fmt.Errorf("direction %q", direction))
	}
	return g.store.FindLinks(ctx, uri, direction, linkType, limit)
}

// InsertLink validates linkType and linkStrength before delegating to
// the store.
func (g *Graph) InsertLink(ctx context.Context, l store.Link) error {
	if !validLinkTypes[l.LinkType] {
		return archiveerr.New(archiveerr.KindInvalid, "linkgraph.InsertLink", fmt.Errorf("link type %q", l.LinkType))
	}
	if l.LinkStrength < 0 || l.LinkStrength > 1 {
		return archiveerr.New(archiveerr.KindInvalid, "linkgraph.InsertLink", fmt.Errorf("link strength %v out of [0,1]", l.LinkStrength))
	}
	return g.store.InsertLink(ctx, l)
}

func (g *Graph) DeleteLink(ctx context.Context, id string) error {
	return g.store.DeleteLink(ctx, id)
}

var validLinkTypes = map[string]bool{
	"parent": true, "child": true, "reference": true, "transclusion": true,
	"similar": true, "follows": true, "responds_to": true, "version_of": true,
}

// Node is one vertex in a traversed subgraph.
type Node struct {
	URI string
}

// Edge is one traversed link, oriented source->target as stored.
type Edge struct {
	SourceURI string
	TargetURI string
	LinkType  string
	Strength  float64
}

// Subgraph is the BFS traversal result: deduplicated nodes and edges.
type Subgraph struct {
	Nodes []Node
	Edges []Edge
}

// Graph traverses outward from uri up to depth hops (capped at MaxDepth),
// optionally filtered to the given link types, and returns the visited
// subgraph. Traversal treats links as undirected for reachability (both
// directions are walked) but edges retain their stored source/target
// orientation.
func (g *Graph) Graph(ctx context.Context, uri string, depth int, types []string) (Subgraph, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	visited := map[string]bool{uri: true}
	edgeSeen := map[string]bool{}
	var nodes []Node
	var edges []Edge
	nodes = append(nodes, Node{URI: uri})

	frontier := []string{uri}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, u := range frontier {
			links, err := g.store.FindLinks(ctx, u, "both", "", 10000)
			if err != nil {
				return Subgraph{}, err
			}
			for _, l := range links {
				if len(typeSet) > 0 && !typeSet[l.LinkType] {
					continue
				}
				key := l.SourceURI + "|" + l.TargetURI + "|" + l.LinkType
				if !edgeSeen[key] {
					edgeSeen[key] = true
					edges = append(edges, Edge{SourceURI: l.SourceURI, TargetURI: l.TargetURI, LinkType: l.LinkType, Strength: l.LinkStrength})
				}
				other := l.TargetURI
				if other == u {
					other = l.SourceURI
				}
				if !visited[other] {
					visited[other] = true
					nodes = append(nodes, Node{URI: other})
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	return Subgraph{Nodes: nodes, Edges: edges}, nil
}
