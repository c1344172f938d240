package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ease-lab/zonecount/counters"
)

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema(" PULocationID=int64, fare_amount=DOUBLE ,")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	typ, ok := s.Type("PULocationID")
	assert.True(t, ok)
	assert.Equal(t, Int64, typ)
	assert.Equal(t, "PULocationID=INT64,fare_amount=DOUBLE", s.String())

	_, err = ParseSchema("PULocationID")
	assert.Error(t, err)
	_, err = ParseSchema("PULocationID=DECIMAL")
	assert.Error(t, err)

	empty, err := ParseSchema("")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestDecodeInfersTypes(t *testing.T) {
	row, err := NewDecoder(nil).Decode(`{"a": 1, "b": 1.5, "c": "x", "d": false, "e": null, "f": [1, 2, null]}`)
	require.NoError(t, err)

	expected := map[string]PrimitiveType{
		"a": Int64,
		"b": Double,
		"c": Binary,
		"d": Boolean,
		"e": Int64,
		"f": Int64,
	}
	for name, want := range expected {
		got, ok := row.Schema().Type(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	assert.Equal(t, 1, row.Repetition("a"))
	assert.Equal(t, 0, row.Repetition("e"))
	assert.Equal(t, 2, row.Repetition("f"))

	v, err := row.Int64("f", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = row.Int64("f", 2)
	assert.Error(t, err)
}

func TestDecodeKeepsDeclaredTypes(t *testing.T) {
	schema, err := ParseSchema("PULocationID=INT32")
	require.NoError(t, err)
	d := NewDecoder(schema)

	row, err := d.Decode(`{"PULocationID": "7"}`)
	require.NoError(t, err)
	typ, _ := row.Schema().Type("PULocationID")
	assert.Equal(t, Int32, typ)

	// declared fields stay declared even when absent
	row, err = d.Decode(`{}`)
	require.NoError(t, err)
	assert.True(t, row.Schema().ContainsField("PULocationID"))
	assert.Equal(t, 0, row.Repetition("PULocationID"))

	// decoding must not leak inferred fields into the declared schema
	_, err = d.Decode(`{"extra": 1}`)
	require.NoError(t, err)
	assert.False(t, schema.ContainsField("extra"))
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	d := NewDecoder(nil)
	for _, line := range []string{`[1,2]`, `42`, `{"a":1} {"b":2}`, `{"a":`, `null 1`} {
		_, err := d.Decode(line)
		assert.Error(t, err, line)
	}
}

func TestDecodeNull(t *testing.T) {
	row, err := NewDecoder(nil).Decode(` null `)
	require.NoError(t, err)
	assert.Nil(t, row)

	reg := counters.NewRegistry()
	_, err = NewExtractor(DefaultLocationField, reg).Extract(row)
	assert.ErrorIs(t, err, ErrNullRecord)
	assert.Equal(t, int64(1), reg.Get(counters.NullRecord))
}

func TestRowString(t *testing.T) {
	row, err := NewDecoder(nil).Decode(`{ "PULocationID" : 4 }`)
	require.NoError(t, err)
	assert.Equal(t, `{"PULocationID":4}`, row.String())
}
