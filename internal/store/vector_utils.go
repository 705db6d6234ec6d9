package store

import (
	"errors"
	"strconv"
)

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// fastParseVectorJSON parses a JSON array of floats into []float32, reusing
// dest's capacity. It avoids encoding/json on the similarity hot path.
func fastParseVectorJSON(data []byte, dest []float32) ([]float32, error) {
	dest = dest[:0]

	i := 0
	skip := func() {
		for i < len(data) && isJSONSpace(data[i]) {
			i++
		}
	}

	skip()
	if i == len(data) {
		return dest, nil
	}
	if data[i] != '[' {
		return nil, errors.New("expected '[' at start")
	}
	i++

	for {
		skip()
		if i == len(data) {
			return nil, errors.New("unterminated vector")
		}
		if data[i] == ']' {
			return dest, nil
		}

		start := i
		for i < len(data) && data[i] != ',' && data[i] != ']' && !isJSONSpace(data[i]) {
			i++
		}
		f, err := strconv.ParseFloat(string(data[start:i]), 32)
		if err != nil {
			return nil, err
		}
		dest = append(dest, float32(f))

		skip()
		if i < len(data) && data[i] == ',' {
			i++
		}
	}
}
