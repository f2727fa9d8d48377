package chunk

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// buildHashFields converts a chunk and its vector into a flat map for HSET.
func buildHashFields(c domain.Chunk, vector []float32) map[string]string {
	return map[string]string{
		"__content": c.Text,
		"__vector":  vectorToBytes(vector),
		"source":    c.Meta.Source,
		"title":     c.Meta.Title,
		"section":   c.Meta.Section,
		"position":  strconv.Itoa(c.Meta.Position),
	}
}

// parseCandidate converts a search hit back into a domain candidate.
func parseCandidate(entry db.SearchEntry) domain.Candidate {
	position, _ := strconv.Atoi(entry.Fields["position"])
	return domain.Candidate{
		Chunk: domain.Chunk{
			Text: entry.Fields["__content"],
			Meta: domain.Metadata{
				Source:   entry.Fields["source"],
				Title:    entry.Fields["title"],
				Section:  entry.Fields["section"],
				Position: position,
			},
		},
		Vector: bytesToVector(entry.Fields["__vector"]),
		Score:  entry.Score,
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
