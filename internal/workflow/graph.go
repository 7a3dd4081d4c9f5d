package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// NodeMeta carries the editor metadata of a node; only the title is meaningful here.
type NodeMeta struct {
	Title string `json:"title"`
}

// Node is one entry of a ComfyUI API-format graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *NodeMeta      `json:"_meta,omitempty"`
}

// Title returns the node's display title, or "" when it has none.
func (n *Node) Title() string {
	if n == nil || n.Meta == nil {
		return ""
	}
	return n.Meta.Title
}

// Graph is a ComfyUI API-format workflow keyed by node id.
type Graph map[string]*Node

// DecodeGraph decodes a graph keeping integer literals as json.Number so that 1 and 1.0 stay distinct.
// Entries that are not JSON objects are skipped.
func DecodeGraph(data []byte) (Graph, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}

	graph := make(Graph, len(raw))
	for id, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var node Node
		if err := dec.Decode(&node); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidGraph, id, err)
		}
		graph[id] = &node
	}
	return graph, nil
}

// Clone returns a deep copy; nested maps and slices in inputs are copied too.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}
	out := make(Graph, len(g))
	for id, node := range g {
		if node == nil {
			out[id] = nil
			continue
		}
		cp := &Node{ClassType: node.ClassType}
		if node.Inputs != nil {
			cp.Inputs = make(map[string]any, len(node.Inputs))
			for k, v := range node.Inputs {
				cp.Inputs[k] = cloneValue(v)
			}
		}
		if node.Meta != nil {
			meta := *node.Meta
			cp.Meta = &meta
		}
		out[id] = cp
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// NodeIDs returns node ids in SortNodeIDs order.
func (g Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	return ids
}

// SortNodeIDs puts numeric ids first in numeric order, then the rest lexicographically.
func SortNodeIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			if a != b {
				return a < b
			}
			return ids[i] < ids[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// IsConnection reports whether an input value links to another node's output.
func IsConnection(v any) bool {
	_, ok := v.([]any)
	return ok
}
