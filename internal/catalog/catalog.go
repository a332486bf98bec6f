package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var ErrEmptyCatalog = errors.New("catalog has no poses")
var ErrDuplicatePose = errors.New("duplicate pose name")
var ErrEmptyPoseName = errors.New("empty pose name")

type Pose struct {
	ID    int    `yaml:"-" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Asset string `yaml:"asset" json:"asset"`
}

// Catalog is the fixed, ordered set of poses the classifier was trained on.
// A pose's ID is its position in the list.
type Catalog struct {
	poses  []Pose
	byName map[string]int
}

// the poses the classifier model is trained on
var defaultPoseNames = []string{
	"Hands & legs separated",
	"Half squat - upper body flex",
	"Stretch Hands straight up",
	"Candle Pose",
	"Huddle Pose",
	"Left-leg & right-arm triangles",
	"Halo around your head",
	"Stretch back (right side)",
	"Stretch back (left side)",
}

func Default() *Catalog {
	poses := make([]Pose, len(defaultPoseNames))
	for i, name := range defaultPoseNames {
		poses[i] = Pose{Name: name, Asset: fmt.Sprintf("images/%s.png", name)}
	}
	c, err := New(poses)
	if err != nil {
		panic(err) // builtin list is static
	}
	return c
}

func New(poses []Pose) (*Catalog, error) {
	if len(poses) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		poses:  make([]Pose, len(poses)),
		byName: make(map[string]int, len(poses)),
	}
	for i, p := range poses {
		key := normalize(p.Name)
		if key == "" {
			return nil, fmt.Errorf("pose %d: %w", i, ErrEmptyPoseName)
		}
		if _, exists := c.byName[key]; exists {
			return nil, fmt.Errorf("%q: %w", p.Name, ErrDuplicatePose)
		}
		p.ID = i
		p.Name = key
		if p.Asset == "" {
			p.Asset = fmt.Sprintf("images/%s.png", key)
		}
		c.poses[i] = p
		c.byName[key] = i
	}
	return c, nil
}

type file struct {
	Poses []Pose `yaml:"poses"`
}

// Load reads a YAML catalog of the form:
//
//	poses:
//	  - name: Candle Pose
//	    asset: images/candle.png
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Poses)
}

func (c *Catalog) Size() int { return len(c.poses) }

func (c *Catalog) Pose(id int) (Pose, bool) {
	if id < 0 || id >= len(c.poses) {
		return Pose{}, false
	}
	return c.poses[id], true
}

// Lookup resolves a classifier label to a pose ID. Labels that are not in the
// catalog report false and must be treated as noise.
func (c *Catalog) Lookup(label string) (int, bool) {
	id, ok := c.byName[normalize(label)]
	return id, ok
}

func (c *Catalog) Poses() []Pose {
	out := make([]Pose, len(c.poses))
	copy(out, c.poses)
	return out
}

func normalize(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}
