package pvdb

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db := New()
	require.NoError(t, db.Add(Scalar("Q1:BCTRL", 1.5, -10, 10)))
	require.NoError(t, db.Add(Array("OUT:ele.a.beta", []float64{1, 2, 3})))
	require.NoError(t, db.Add(String("OUT:ele.name.0", "BEGINNING")))
	require.NoError(t, db.Add(StringArray("OUT:ele.name", []string{"BEGINNING", "Q1"})))

	ro := Scalar("OUT:ele.s", 0, math.Inf(-1), math.Inf(1))
	ro.ReadOnly = true
	require.NoError(t, db.Add(ro))
	return db
}

func TestAddDuplicateAndInvalid(t *testing.T) {
	db := newTestDB(t)

	assert.ErrorIs(t, db.Add(Scalar("Q1:BCTRL", 0, 0, 1)), ErrExists)
	assert.ErrorIs(t, db.Add(Record{Name: ""}), ErrInvalidName)
	assert.ErrorIs(t, db.Add(Record{Name: "bad name"}), ErrInvalidName)
	assert.ErrorIs(t, db.Add(Record{Name: "X", Kind: KindArray, Value: "text"}), ErrTypeMismatch)
	assert.Equal(t, 5, db.Len())
}

func TestPutCoercesToKind(t *testing.T) {
	db := newTestDB(t)

	tests := []struct {
		name  string
		pv    string
		value any
		want  any
	}{
		{"IntToScalar", "Q1:BCTRL", int64(2), 2.0},
		{"BoolToScalar", "Q1:BCTRL", true, 1.0},
		{"NumericStringToScalar", "Q1:BCTRL", " 3.5 ", 3.5},
		{"SingleElementArrayToScalar", "Q1:BCTRL", []float64{4}, 4.0},
		{"ScalarToArray", "OUT:ele.a.beta", 7.0, []float64{7}},
		{"IntArrayToArray", "OUT:ele.a.beta", []int64{1, 2}, []float64{1, 2}},
		{"NumberToString", "OUT:ele.name.0", 12.5, "12.5"},
		{"StringToStringArray", "OUT:ele.name", "Q2", []string{"Q2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Put(tt.pv, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			rec, ok := db.Lookup(tt.pv)
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.Value)
		})
	}
}

func TestPutErrors(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Put("missing", 1.0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.Put("OUT:ele.s", 1.0)
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = db.Put("Q1:BCTRL", 11.0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = db.Put("Q1:BCTRL", "abc")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = db.Put("OUT:ele.a.beta", []string{"a"})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	rec, _ := db.Lookup("Q1:BCTRL")
	assert.Equal(t, 1.5, rec.Value, "failed puts leave the value unchanged")
}

func TestPutMaxCount(t *testing.T) {
	db := New()
	rec := Array("A", nil)
	rec.MaxCount = 2
	require.NoError(t, db.Add(rec))

	_, err := db.Put("A", []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = db.Put("A", []float64{1, 2})
	assert.NoError(t, err)
}

func TestUpdateBypassesReadOnly(t *testing.T) {
	db := newTestDB(t)

	v, err := db.Update("OUT:ele.s", 12.0, wire.SeverityMinor)
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)

	rec, _ := db.Lookup("OUT:ele.s")
	assert.Equal(t, 12.0, rec.Value)
	assert.Equal(t, wire.SeverityMinor, rec.Severity)
}

func TestLookupReturnsCopy(t *testing.T) {
	db := newTestDB(t)

	rec, _ := db.Lookup("OUT:ele.a.beta")
	rec.Value.([]float64)[0] = 99
	rec.Range = &Range{}

	again, _ := db.Lookup("OUT:ele.a.beta")
	assert.Equal(t, []float64{1, 2, 3}, again.Value)
}

func TestListAndNames(t *testing.T) {
	db := newTestDB(t)

	assert.Equal(t, []string{"OUT:ele.a.beta", "OUT:ele.name", "OUT:ele.name.0", "OUT:ele.s"}, db.List("OUT:"))
	assert.Len(t, db.Names(), 5)
	assert.True(t, db.Has("Q1:BCTRL"))

	require.NoError(t, db.Remove("Q1:BCTRL"))
	assert.False(t, db.Has("Q1:BCTRL"))
	assert.ErrorIs(t, db.Remove("Q1:BCTRL"), ErrNotFound)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	db := newTestDB(t)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	var got []Change
	cancel, err := db.Subscribe("Q1:BCTRL", func(c Change) { got = append(got, c) })
	require.NoError(t, err)
	assert.Equal(t, 1, db.Listeners("Q1:BCTRL"))

	_, err = db.Put("Q1:BCTRL", 2.0)
	require.NoError(t, err)
	_, err = db.Put("Q1:BCTRL", 100.0)
	require.Error(t, err)

	cancel()
	_, err = db.Put("Q1:BCTRL", 3.0)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, Change{Name: "Q1:BCTRL", Value: 2.0, Timestamp: fixed}, got[0])
	assert.Equal(t, 0, db.Listeners("Q1:BCTRL"))

	_, err = db.Subscribe("missing", func(Change) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListenersSeeStorageOrder(t *testing.T) {
	db := New()
	require.NoError(t, db.Add(Scalar("X", 0, math.Inf(-1), math.Inf(1))))

	var mu sync.Mutex
	var seen []float64
	_, err := db.Subscribe("X", func(c Change) {
		mu.Lock()
		seen = append(seen, c.Value.(float64))
		mu.Unlock()
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, _ = db.Put("X", v)
		}(float64(i))
	}
	wg.Wait()

	rec, _ := db.Lookup("X")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 50)
	assert.Equal(t, rec.Value, seen[len(seen)-1], "last notification matches stored value")
}

func TestInfo(t *testing.T) {
	db := newTestDB(t)

	rec, _ := db.Lookup("Q1:BCTRL")
	info := rec.Info()
	assert.Equal(t, "scalar", info.Kind)
	require.NotNil(t, info.Low)
	assert.Equal(t, -10.0, *info.Low)
	assert.Equal(t, 10.0, *info.High)
	assert.Equal(t, 1, info.Count)

	rec, _ = db.Lookup("OUT:ele.name")
	info = rec.Info()
	assert.Equal(t, "string-array", info.Kind)
	assert.Nil(t, info.Low)
	assert.Equal(t, 2, info.Count)
}

func TestStatusFor(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Put("OUT:ele.s", 1.0)
	assert.Equal(t, wire.StatusReadOnly, StatusFor(err))
	_, err = db.Put("nope", 1.0)
	assert.Equal(t, wire.StatusNotFound, StatusFor(err))
	_, err = db.Put("Q1:BCTRL", 1e9)
	assert.Equal(t, wire.StatusOutOfRange, StatusFor(err))
	_, err = db.Put("Q1:BCTRL", "x")
	assert.Equal(t, wire.StatusTypeMismatch, StatusFor(err))
	assert.Equal(t, wire.StatusSuccess, StatusFor(nil))
}
