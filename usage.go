package vtstream

import (
	"fmt"
	"io"
	"os"

	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
)

const (
	STREAMING = "Streaming"
	VALIDATE  = "Validation"
)

// Usage is a named bag of loosely typed properties, linked into a chain so
// later usages can refine earlier ones. Streaming properties are keyed by
// the vtex.Config field name, e.g. Int_props["TileRows"] or
// String_props["ReleasePolicy"].
type Usage struct {
	Name         string
	String_props map[string]string
	Int_props    map[string]int
	Bool_props   map[string]bool
	Float_props  map[string]float32
	Linked_usage *Usage
}

func NewUsage(name string, default_size uint) *Usage {
	var use Usage
	use.Name = name
	use.String_props = make(map[string]string, default_size)
	use.Int_props = make(map[string]int, default_size)
	use.Bool_props = make(map[string]bool, default_size)
	use.Float_props = make(map[string]float32, default_size)
	return &use
}

func (u *Usage) HasNext() bool {
	return u.Linked_usage != nil
}

func (u *Usage) GetLinkedUsage() (*Usage, error) {
	if !u.HasNext() {
		return nil, errors.Newf("properties %s have no linked usage", u.Name)
	}
	return u.Linked_usage, nil
}

// StreamConfig overlays the usage chain, first to last, on
// vtex.DefaultConfig and validates the result.
func (u *Usage) StreamConfig() (vtex.Config, error) {
	cfg := vtex.DefaultConfig()
	for use := u; use != nil; use = use.Linked_usage {
		if err := use.apply(&cfg); err != nil {
			return cfg, errors.Wrapf(err, "usage %s", use.Name)
		}
	}
	return cfg, cfg.Validate()
}

func (u *Usage) apply(cfg *vtex.Config) error {
	uints := map[string]*uint32{
		"TextureWidth":  &cfg.TextureWidth,
		"TextureHeight": &cfg.TextureHeight,
		"MipLevels":     &cfg.MipLevels,
		"BytesPerTexel": &cfg.BytesPerTexel,
	}
	ints := map[string]*int{
		"PagesPerSector": &cfg.PagesPerSector,
		"FixedMipLevels": &cfg.FixedMipLevels,
		"TileRows":       &cfg.TileRows,
		"TileColumns":    &cfg.TileColumns,
		"Workers":        &cfg.Workers,
	}
	for key, v := range u.Int_props {
		if dst, ok := uints[key]; ok {
			if v < 0 {
				return errors.Newf("%s must not be negative, got %d", key, v)
			}
			*dst = uint32(v)
			continue
		}
		if dst, ok := ints[key]; ok {
			*dst = v
		}
	}
	if v, ok := u.String_props["ReleasePolicy"]; ok {
		cfg.ReleasePolicy = vtex.ReleasePolicy(v)
	}
	if v, ok := u.String_props["LogLevel"]; ok {
		cfg.LogLevel = v
	}
	return nil
}

// Print writes the usage tree to stdout.
func (u *Usage) Print() {
	u.Fprint(os.Stdout)
}

func (u *Usage) Fprint(w io.Writer) {
	for use := u; use != nil; use = use.Linked_usage {
		fmt.Fprintln(w, use.Name, use.String_props, use.Bool_props, use.Int_props, use.Float_props)
	}
}
