package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields_GetPreservesOrder(t *testing.T) {
	f := Fields{
		{Name: "title", Value: "Weekly sync"},
		{Name: "owner", Value: "dana"},
		{Name: "priority", Value: "High"},
	}

	v, ok := f.Get("owner")
	assert.True(t, ok)
	assert.Equal(t, "dana", v)

	_, ok = f.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, "Weekly sync", f.GetString("title"))
	assert.Equal(t, "", f.GetString("priority_number"))
}

func TestFields_Set(t *testing.T) {
	f := Fields{{Name: "title", Value: "a"}}

	f = f.Set("title", "b")
	assert.Len(t, f, 1)
	assert.Equal(t, "b", f.GetString("title"))

	f = f.Set("owner", "dana")
	assert.Len(t, f, 2)
	assert.Equal(t, "owner", f[1].Name)
}

func TestRecordKind_IsValid(t *testing.T) {
	assert.True(t, KindTask.IsValid())
	assert.True(t, KindMeeting.IsValid())
	assert.True(t, KindDocument.IsValid())
	assert.False(t, RecordKind("email").IsValid())
}

func TestExternalRecord_TitleOwner(t *testing.T) {
	rec := ExternalRecord{
		RecordID: "r1",
		Kind:     KindTask,
		Fields: Fields{
			{Name: FieldTitle, Value: "Ship release"},
			{Name: FieldOwner, Value: "jb"},
		},
	}

	assert.Equal(t, "Ship release", rec.Title())
	assert.Equal(t, "jb", rec.Owner())
}
