package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/servolink/pkg/link"
)

func TestPropertyTableDefine(t *testing.T) {
	tbl := NewPropertyTable()
	require.NoError(t, tbl.Define(Property{Key: 3, Name: "gain", Mode: link.ModeProperty, Value: []byte{1}}))
	require.Error(t, tbl.Define(Property{Key: 3, Name: "again", Mode: link.ModeDisplay}))
	require.Error(t, tbl.Define(Property{Key: 4, Mode: link.PropertyMode(7)}))
	require.Error(t, tbl.Define(Property{Key: 5, Mode: link.ModeDisplay, Value: make([]byte, link.MaxPropertyValueSize+1)}))
	require.Error(t, tbl.Define(Property{Key: 6, Name: "empty", Mode: link.ModeProperty}))
	require.NoError(t, tbl.Define(Property{Key: 7, Name: "blank", Mode: link.ModeDisplay}))
	require.NoError(t, tbl.Define(Property{Key: 1, Name: "fw", Mode: link.ModeDisplay, Value: []byte("1.0")}))
	require.Equal(t, 3, tbl.Len())

	require.Panics(t, func() {
		NewPropertyTable(Property{Key: 1}, Property{Key: 1})
	})
}

func TestPropertyTableCopies(t *testing.T) {
	value := []byte{1, 2}
	tbl := NewPropertyTable(Property{Key: 2, Name: "b", Mode: link.ModeProperty, Value: value})
	value[0] = 9
	p, ok := tbl.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2}, p.Value)
	p.Value[1] = 9
	p, _ = tbl.Get(2)
	require.Equal(t, []byte{1, 2}, p.Value)
	_, ok = tbl.Get(7)
	require.False(t, ok)
}

func TestPropertyTableSnapshot(t *testing.T) {
	tbl := NewPropertyTable(
		Property{Key: 9, Name: "z", Mode: link.ModeDisplay},
		Property{Key: 1, Name: "a", Mode: link.ModeProperty, Value: []byte{1}},
		Property{Key: 4, Name: "m", Mode: link.ModeDisplay},
	)
	snapshot := tbl.Snapshot()
	require.Len(t, snapshot, 3)
	for i, key := range []link.PropertyKey{1, 4, 9} {
		require.Equal(t, key, snapshot[i].Key)
	}
	restored := NewPropertyTable(snapshot...)
	require.Equal(t, snapshot, restored.Snapshot())
}
