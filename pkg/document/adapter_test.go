package document

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hotel struct {
	HotelID            string     `search:"hotelId,key"`
	BaseRate           *float64   `search:"baseRate"`
	Description        *string    `search:"description"`
	HotelName          *string    `search:"hotelName"`
	Tags               []string   `search:"tags"`
	ParkingIncluded    *bool      `search:"parkingIncluded"`
	LastRenovationDate *time.Time `search:"lastRenovationDate"`
	Rating             *int       `search:"rating"`
	Location           *GeoPoint  `search:"location"`
	internal           string
}

type book struct {
	ISBN        string     `search:",key"`
	Title       *string    `search:",nullable"`
	PublishDate *time.Time `search:"PublishDate"`
	Skipped     string     `search:"-"`
}

func ptr[T any](v T) *T { return &v }

func TestAdapter_RoundTrip(t *testing.T) {
	adapter, err := NewAdapter[hotel]()
	require.NoError(t, err)
	assert.Equal(t, "hotelId", adapter.KeyField())

	orig := hotel{
		HotelID:            "1",
		BaseRate:           ptr(199.0),
		Description:        ptr("Best hotel in town"),
		Tags:               []string{"pool", "view"},
		ParkingIncluded:    ptr(false),
		LastRenovationDate: ptr(time.Date(2010, 6, 27, 8, 0, 0, 0, time.UTC)),
		Rating:             ptr(5),
		Location:           &GeoPoint{Latitude: 47.678581, Longitude: -122.131577},
	}

	doc, err := adapter.ToDocument(orig)
	require.NoError(t, err)
	assert.False(t, doc.Has("hotelName"), "nil field must be omitted")
	assert.Equal(t, "1", adapter.Key(orig))

	back, err := adapter.FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestAdapter_TimestampsReadBackAsUTC(t *testing.T) {
	adapter := MustAdapter[book]()
	pst := time.FixedZone("PST", -8*3600)
	local := time.Date(2010, 6, 27, 0, 0, 0, 0, pst)

	doc, err := adapter.ToDocument(book{ISBN: "1", PublishDate: &local})
	require.NoError(t, err)
	back, err := adapter.FromDocument(doc)
	require.NoError(t, err)

	require.NotNil(t, back.PublishDate)
	assert.Equal(t, time.UTC, back.PublishDate.Location())
	assert.True(t, back.PublishDate.Equal(local))

	// Offset-less wire form is taken as UTC.
	wire := New().Set("isbn", String("2")).Set("publishdate", String("2000-01-01T00:00:00"))
	back, err = adapter.FromDocument(wire)
	require.NoError(t, err)
	assert.Equal(t, "2", back.ISBN)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), *back.PublishDate)
}

func TestAdapter_DateLikeStringsSurviveJSON(t *testing.T) {
	adapter := MustAdapter[hotel]()
	orig := hotel{
		HotelID:     "2024-01-01T00:00:00Z",
		Description: ptr("2010-06-27T00:00:00.000Z"),
		HotelName:   ptr("2010-06-27T00:00:00"),
		Tags:        []string{"2010-06-27", "2010-06-27T00:00:00+00:00"},
	}
	sent, err := adapter.ToDocument(orig)
	require.NoError(t, err)

	data, err := json.Marshal(sent)
	require.NoError(t, err)
	var received Document
	require.NoError(t, json.Unmarshal(data, &received))
	assert.True(t, sent.Equal(&received), "decoded %s", received.String())

	back, err := adapter.FromDocument(&received)
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestAdapter_NullableWritesExplicitNull(t *testing.T) {
	adapter := MustAdapter[book]()

	doc, err := adapter.ToDocument(book{ISBN: "1", Skipped: "x"})
	require.NoError(t, err)

	v, ok := doc.Get("Title")
	assert.True(t, ok)
	assert.True(t, v.IsNull())
	assert.False(t, doc.Has("PublishDate"))
	assert.False(t, doc.Has("Skipped"))
	assert.Equal(t, []string{"ISBN", "Title"}, doc.Fields())
}

func TestAdapter_CaseInsensitiveReadDropsUnknown(t *testing.T) {
	adapter := MustAdapter[hotel]()
	doc := New().
		Set("HOTELID", String("9")).
		Set("Rating", Int(4)).
		Set("BaseRate", String("NaN")).
		Set("unknownField", String("ignored"))

	h, err := adapter.FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "9", h.HotelID)
	assert.Equal(t, 4, *h.Rating)
	assert.True(t, math.IsNaN(*h.BaseRate))
}

func TestAdapter_KindMismatch(t *testing.T) {
	adapter := MustAdapter[hotel]()
	_, err := adapter.FromDocument(New().Set("hotelId", String("1")).Set("rating", String("five")))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Rating")
}

func TestNewAdapter_Errors(t *testing.T) {
	type noKey struct {
		Name string
	}
	type twoKeys struct {
		A string `search:",key"`
		B string `search:",key"`
	}
	type intKey struct {
		ID int `search:",key"`
	}
	type collide struct {
		ID   string `search:"id,key"`
		Name string `search:"name"`
		Alt  string `search:"NAME"`
	}
	type badType struct {
		ID   string `search:",key"`
		Meta map[string]string
	}

	_, err := NewAdapter[noKey]()
	assert.Error(t, err)
	_, err = NewAdapter[twoKeys]()
	assert.Error(t, err)
	_, err = NewAdapter[intKey]()
	assert.Error(t, err)
	_, err = NewAdapter[collide]()
	assert.Error(t, err)
	_, err = NewAdapter[badType]()
	assert.Error(t, err)
	_, err = NewAdapter[string]()
	assert.Error(t, err)
}
