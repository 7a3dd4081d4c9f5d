package executor

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"strings"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// RandomizeSeeds replaces every zero "seed" input with a fresh non-negative 63-bit value and
// returns the new seeds by node id. Float zeros, empty strings and non-zero seeds are left alone.
func RandomizeSeeds(graph workflow.Graph) map[string]int64 {
	seeds := make(map[string]int64)
	for _, id := range graph.NodeIDs() {
		node := graph[id]
		if node == nil || node.Inputs == nil {
			continue
		}
		v, ok := node.Inputs["seed"]
		if !ok || !isZeroSeed(v) {
			continue
		}
		seed := randomSeed()
		node.Inputs["seed"] = seed
		seeds[id] = seed
	}
	return seeds
}

func isZeroSeed(v any) bool {
	switch s := v.(type) {
	case json.Number:
		return s.String() == "0"
	case int:
		return s == 0
	case int64:
		return s == 0
	case string:
		return strings.TrimSpace(s) == "0"
	}
	return false
}

func randomSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1)
}
