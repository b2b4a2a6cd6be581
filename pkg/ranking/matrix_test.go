package ranking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparisonMatrix(t *testing.T) {
	t.Run("both directions share the total", func(t *testing.T) {
		m := NewComparisonMatrix()
		m.Record(1, 2)
		m.Record(1, 2)
		m.Record(2, 1)

		assert.Equal(t, MatrixEntry{Wins: 2, Total: 3}, m.Lookup(1, 2))
		assert.Equal(t, MatrixEntry{Wins: 1, Total: 3}, m.Lookup(2, 1))
		assert.Equal(t, 3, m.Combined(1, 2))
		assert.Equal(t, 3, m.Combined(2, 1))
		assert.Equal(t, 2, m.Len())
	})

	t.Run("unknown pairs read as zero", func(t *testing.T) {
		m := NewComparisonMatrix()
		assert.Equal(t, MatrixEntry{}, m.Lookup(5, 6))
		assert.Equal(t, 0, m.Combined(5, 6))
	})

	t.Run("clone is independent", func(t *testing.T) {
		m := NewComparisonMatrix()
		m.Record(1, 2)
		clone := m.Clone()
		clone.Record(1, 2)

		assert.Equal(t, 1, m.Lookup(1, 2).Wins)
		assert.Equal(t, 2, clone.Lookup(1, 2).Wins)
	})

	t.Run("opponents are sorted", func(t *testing.T) {
		m := NewComparisonMatrix()
		m.Record(1, 9)
		m.Record(3, 1)
		m.Record(1, 4)

		assert.Equal(t, []int{3, 4, 9}, m.opponents()[1])
	})
}

func TestComparisonMatrixJSON(t *testing.T) {
	t.Run("keys use winner-loser form", func(t *testing.T) {
		m := NewComparisonMatrix()
		m.Record(1, 2)

		data, err := json.Marshal(m)
		require.NoError(t, err)
		assert.JSONEq(t, `{"1-2":{"wins":1,"total":1},"2-1":{"wins":0,"total":1}}`, string(data))

		var decoded ComparisonMatrix
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, m.Entries(), decoded.Entries())
	})

	t.Run("negative ids survive", func(t *testing.T) {
		key, err := parsePairKey("-3--12")
		require.NoError(t, err)
		assert.Equal(t, PairKey{Winner: -3, Loser: -12}, key)
		assert.Equal(t, "-3--12", key.String())
	})

	testCases := []struct {
		name  string
		input string
	}{
		{"malformed key", `{"12":{"wins":1,"total":1}}`},
		{"non numeric key", `{"a-b":{"wins":1,"total":1}}`},
		{"wins above total", `{"1-2":{"wins":3,"total":1}}`},
		{"negative wins", `{"1-2":{"wins":-1,"total":1}}`},
		{"missing reverse direction", `{"1-2":{"wins":1,"total":1}}`},
		{"totals disagree", `{"1-2":{"wins":1,"total":2},"2-1":{"wins":1,"total":3}}`},
		{"wins do not add up", `{"1-2":{"wins":1,"total":3},"2-1":{"wins":1,"total":3}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var m ComparisonMatrix
			err := json.Unmarshal([]byte(tc.input), &m)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}
