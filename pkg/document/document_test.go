package document

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_SetGetRemove(t *testing.T) {
	doc := New().
		Set("hotelId", String("1")).
		Set("rating", Int(5)).
		Set("description", Null())

	v, ok := doc.Get("hotelId")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "1", s)

	// Explicit null is present, distinct from absent.
	v, ok = doc.Get("description")
	assert.True(t, ok)
	assert.True(t, v.IsNull())

	assert.True(t, doc.Remove("description"))
	assert.False(t, doc.Has("description"))
	assert.False(t, doc.Remove("description"))
	assert.Equal(t, []string{"hotelId", "rating"}, doc.Fields())
}

func TestDocument_FieldNamesAreCaseSensitive(t *testing.T) {
	doc := New().Set("Rating", Int(1)).Set("rating", Int(2))

	assert.Equal(t, 2, doc.Len())
	v, _ := doc.Get("Rating")
	i, _ := v.AsInt()
	assert.EqualValues(t, 1, i)
}

func TestDocument_ResetKeepsPosition(t *testing.T) {
	doc := New().Set("a", Int(1)).Set("b", Int(2)).Set("a", Int(3))

	assert.Equal(t, []string{"a", "b"}, doc.Fields())
	v, _ := doc.Get("a")
	assert.True(t, v.Equal(Int(3)))
}

func TestDocument_EqualIgnoresOrder(t *testing.T) {
	a := New().Set("x", Int(1)).Set("y", Strings("p", "q"))
	b := New().Set("y", Strings("p", "q")).Set("x", Int(1))
	c := New().Set("x", Int(1)).Set("y", Strings("q", "p"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(New().Set("x", Int(1))))
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	orig := New().Set("tags", Strings("pool"))
	cp := orig.Clone()
	cp.Set("tags", Strings("view")).Set("extra", Bool(true))

	v, _ := orig.Get("tags")
	assert.True(t, v.Equal(Strings("pool")))
	assert.False(t, orig.Has("extra"))
}

func TestValue_Equal(t *testing.T) {
	pst := time.FixedZone("PST", -8*3600)
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"nan equals nan", Float(math.NaN()), Float(math.NaN()), true},
		{"int and float differ", Int(1), Float(1), false},
		{"same instant other zone", Timestamp(time.Date(2010, 6, 27, 0, 0, 0, 0, pst)), Timestamp(time.Date(2010, 6, 27, 8, 0, 0, 0, time.UTC)), true},
		{"geo", Geo(47.6, -122.1), Geo(47.6, -122.1), true},
		{"empty arrays", Strings(), Array(), true},
		{"null vs empty string", Null(), String(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestDocument_Validate(t *testing.T) {
	assert.NoError(t, New().Set("tags", Array(String("a"), Null(), String("b"))).Validate())
	assert.Error(t, New().Set("mixed", Array(String("a"), Int(1))).Validate())
	assert.Error(t, New().Set("nested", Array(Strings("a"))).Validate())
	assert.Error(t, New().Set("", Int(1)).Validate())
}

func TestCodec_RoundTrip(t *testing.T) {
	doc := New().
		Set("hotelId", String("1")).
		Set("baseRate", Float(199.0)).
		Set("tags", Strings("pool", "view")).
		Set("parkingIncluded", Bool(false)).
		Set("lastRenovationDate", Timestamp(time.Date(2010, 6, 27, 0, 0, 0, 0, time.FixedZone("", -8*3600)))).
		Set("rating", Int(5)).
		Set("location", Geo(47.678581, -122.131577)).
		Set("hotelName", Null()).
		Set("score", Float(math.NaN()))

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"baseRate":199.0`)
	assert.Contains(t, string(data), `"location":{"type":"Point","coordinates":[-122.131577,47.678581]}`)
	assert.Contains(t, string(data), `"lastRenovationDate":"2010-06-27T00:00:00-08:00"`)
	assert.Contains(t, string(data), `"score":"NaN"`)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, doc.Fields(), back.Fields())

	// NaN comes back as its wire literal; everything else is exact.
	back.Remove("score")
	doc.Remove("score")
	assert.True(t, doc.Equal(&back), "decoded %s", back.String())
}

func TestCodec_OffsetlessDateTimeIsUTC(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"PublishDate":"2000-01-01T00:00:00"}`), &doc))

	v, ok := doc.Get("PublishDate")
	require.True(t, ok)
	ts, ok := v.AsTimestamp()
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())
	assert.True(t, ts.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCodec_DateLikeStringKeepsText(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"hotelId":"2024-01-01T00:00:00Z","note":"2010-06-27T00:00:00.000Z"}`), &doc))

	id, ok := doc.Get("hotelId")
	require.True(t, ok)
	s, ok := id.AsString()
	require.True(t, ok)
	assert.Equal(t, "2024-01-01T00:00:00Z", s)
	_, ok = id.AsTimestamp()
	assert.True(t, ok)
	assert.True(t, id.Equal(String("2024-01-01T00:00:00Z")))
	assert.True(t, String("2024-01-01T00:00:00Z").Equal(id))
	assert.False(t, id.Equal(String("2024-01-01T00:00:00.000Z")))

	data, err := json.Marshal(&doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hotelId":"2024-01-01T00:00:00Z","note":"2010-06-27T00:00:00.000Z"}`, string(data))

	sent := New().Set("hotelId", String("2024-01-01T00:00:00Z")).Set("note", String("2010-06-27T00:00:00.000Z"))
	assert.True(t, sent.Equal(&doc), "decoded %s", doc.String())
}

func TestValidate_DecodedDateStringsMixWithStrings(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`["pool","2010-06-27T00:00:00Z",null]`), &v))
	assert.NoError(t, v.Validate())

	mixed := Array(String("pool"), Timestamp(time.Date(2010, 6, 27, 0, 0, 0, 0, time.UTC)))
	assert.Error(t, mixed.Validate())
}

func TestCodec_RejectsNonPointObjects(t *testing.T) {
	var doc Document
	err := json.Unmarshal([]byte(`{"address":{"city":"Seattle"}}`), &doc)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}

func TestCodec_NumberKinds(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"a":4,"b":4.5,"c":1e3,"d":99999999999999999999}`), &doc))

	a, _ := doc.Get("a")
	b, _ := doc.Get("b")
	c, _ := doc.Get("c")
	d, _ := doc.Get("d")
	assert.Equal(t, KindInt, a.Kind())
	assert.Equal(t, KindFloat, b.Kind())
	assert.Equal(t, KindFloat, c.Kind())
	assert.Equal(t, KindFloat, d.Kind())
}
