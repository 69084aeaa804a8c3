package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []interface{}{nil, true, false, int64(-7), 3.5, []byte("raw"), "hello"}
	for _, in := range cases {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, in))
		out, err := Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncodeDecodeListAndDict(t *testing.T) {
	d := NewDict()
	d.Set("firstName", "Alice")
	d.Set("age", int64(30))

	list := []interface{}{int64(1), "two", d}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, list))

	out, err := Decode(&buf)
	require.NoError(t, err)

	decodedList, ok := out.([]interface{})
	require.True(t, ok)
	require.Len(t, decodedList, 3)
	assert.Equal(t, int64(1), decodedList[0])
	assert.Equal(t, "two", decodedList[1])

	decodedDict, ok := decodedList[2].(*Dict)
	require.True(t, ok)
	assert.Equal(t, []string{"firstName", "age"}, decodedDict.Keys())
	v, ok := decodedDict.Get("firstName")
	require.True(t, ok)
	assert.Equal(t, "Alice", v)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := CallBody("fetch_table", "Students", true)
	require.NoError(t, WriteMessage(&buf, Call, body))

	code, value, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, Call, code)

	name, args, err := ParseCall(value)
	require.NoError(t, err)
	assert.Equal(t, "fetch_table", name)
	assert.Equal(t, []interface{}{"Students", true}, args)
}

func TestReadFrameStopsAtExactLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Data, "ok"))
	require.NoError(t, WriteMessage(&buf, Exc, ExcBody("SchemaError", "no such table")))

	frame1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, Data, frame1.Code)

	frame2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, Exc, frame2.Code)

	value2, err := Decode(bytes.NewReader(frame2.Body))
	require.NoError(t, err)
	assert.Equal(t, "SchemaError no such table", value2)
}

func TestReadFrameTruncatedErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Data, "hello world"))
	truncated := bytes.NewReader(buf.Bytes()[:6])
	_, err := ReadFrame(truncated)
	assert.Error(t, err)
}
