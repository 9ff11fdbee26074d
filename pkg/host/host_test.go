package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstFileBacked(t *testing.T) {
	out := StaticBuffer{Path: "output:log", Content: "x"}
	empty := StaticBuffer{Path: "file:///a.py", OnDisk: true}
	file := StaticBuffer{Path: "file:///b.py", Content: "def b(): pass", OnDisk: true}

	got, ok := FirstFileBacked([]Buffer{out, nil, empty, file})
	assert.True(t, ok)
	assert.Equal(t, "file:///b.py", got.URI())

	_, ok = FirstFileBacked([]Buffer{out})
	assert.False(t, ok)
}
