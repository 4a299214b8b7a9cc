package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultBuildingID names the built-in building used when no catalog is present.
const DefaultBuildingID = "house"

type Catalogs struct {
	Buildings BuildingCatalog
}

type BuildingCatalog struct {
	ByID   map[string]BuildingDef
	Digest string
}

type BuildingDef struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Footprint    [2]int  `json:"footprint"` // cells along X, Z
	Cost         float64 `json:"cost"`
	ResourceCost float64 `json:"resource_cost"`
	HeightOffset float64 `json:"height_offset"`
}

func DefaultBuilding() BuildingDef {
	return BuildingDef{
		ID:           DefaultBuildingID,
		Name:         "House",
		Footprint:    [2]int{2, 2},
		Cost:         100,
		ResourceCost: 50,
		HeightOffset: 0.05,
	}
}

// Default is the catalog used when no buildings directory exists: the
// built-in house only.
func Default() *Catalogs {
	var c Catalogs
	c.Buildings.setDefault()
	return &c
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBuildings(filepath.Join(configDir, "buildings"), &c.Buildings); err != nil {
		return nil, err
	}
	return &c, nil
}

// IDs returns building ids in sorted order.
func (b BuildingCatalog) IDs() []string {
	ids := make([]string, 0, len(b.ByID))
	for id := range b.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b BuildingCatalog) Get(id string) (BuildingDef, bool) {
	d, ok := b.ByID[id]
	return d, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBuildings(dir string, out *BuildingCatalog) error {
	out.ByID = map[string]BuildingDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			out.setDefault()
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var def BuildingDef
		if err := json.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("building %s: %w", filepath.Base(p), err)
		}
		if err := validate(def); err != nil {
			return fmt.Errorf("building %s: %w", filepath.Base(p), err)
		}
		if _, dup := out.ByID[def.ID]; dup {
			return fmt.Errorf("building %s: duplicate id %q", filepath.Base(p), def.ID)
		}
		out.ByID[def.ID] = def
	}
	if len(out.ByID) == 0 {
		return fmt.Errorf("buildings: no definitions in %s", dir)
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func (b *BuildingCatalog) setDefault() {
	def := DefaultBuilding()
	raw, _ := json.Marshal(def)
	b.ByID = map[string]BuildingDef{def.ID: def}
	b.Digest = sha256Hex(raw)
}

func validate(d BuildingDef) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("missing id")
	case d.Footprint[0] <= 0 || d.Footprint[1] <= 0:
		return fmt.Errorf("footprint must be positive, got %v", d.Footprint)
	case d.Cost < 0 || d.ResourceCost < 0:
		return fmt.Errorf("negative cost")
	}
	return nil
}
