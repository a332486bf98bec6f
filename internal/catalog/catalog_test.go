package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_NinePosesInOrder(t *testing.T) {
	c := Default()
	require.Equal(t, 9, c.Size())

	p, ok := c.Pose(3)
	require.True(t, ok)
	assert.Equal(t, "Candle Pose", p.Name)
	assert.Equal(t, "images/Candle Pose.png", p.Asset)
	assert.Equal(t, 3, p.ID)

	_, ok = c.Pose(9)
	assert.False(t, ok)
	_, ok = c.Pose(-1)
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	c := Default()

	cases := []struct {
		name   string
		label  string
		wantID int
		wantOK bool
	}{
		{name: "exact", label: "Huddle Pose", wantID: 4, wantOK: true},
		{name: "surrounding whitespace", label: "  Huddle Pose\n", wantID: 4, wantOK: true},
		{name: "unknown label", label: "Tree Pose", wantOK: false},
		{name: "empty label", label: "", wantOK: false},
		{name: "case differs", label: "huddle pose", wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := c.Lookup(tc.label)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, id)
			}
		})
	}
}

func TestLookup_NormalizesDecomposedUnicode(t *testing.T) {
	c, err := New([]Pose{{Name: "Pos\u00e9"}, {Name: "Other"}})
	require.NoError(t, err)

	id, ok := c.Lookup("Pose\u0301")
	require.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestNew_RejectsBadCatalogs(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = New([]Pose{{Name: "A"}, {Name: " A "}})
	assert.ErrorIs(t, err, ErrDuplicatePose)

	_, err = New([]Pose{{Name: "A"}, {Name: "   "}})
	assert.ErrorIs(t, err, ErrEmptyPoseName)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poses.yaml")
	data := []byte(`poses:
  - name: Candle Pose
    asset: img/candle.png
  - name: Huddle Pose
  - name: Halo around your head
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, c.Size())

	p, _ := c.Pose(0)
	assert.Equal(t, "img/candle.png", p.Asset)
	p, _ = c.Pose(1)
	assert.Equal(t, "images/Huddle Pose.png", p.Asset)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPoses_ReturnsCopy(t *testing.T) {
	c := Default()
	ps := c.Poses()
	ps[0].Name = "mutated"

	p, _ := c.Pose(0)
	assert.Equal(t, "Hands & legs separated", p.Name)
}
