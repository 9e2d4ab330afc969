package vtex

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
)

// ReleasePolicy selects how evicted memory is made safe to reuse.
type ReleasePolicy string

const (
	// ReleaseOnFence releases an evicted page once the fence of the
	// submission that unbound it has signaled.
	ReleaseOnFence ReleasePolicy = "fence"
	// ReleaseOnIdle waits for the whole device to go idle before releasing.
	// Always correct, but stalls the pipeline.
	ReleaseOnIdle ReleasePolicy = "idle"
)

// Config describes the streamed texture and how the streamer runs.
type Config struct {
	TextureWidth  uint32 `json:"texture_width"`
	TextureHeight uint32 `json:"texture_height"`
	MipLevels     uint32 `json:"mip_levels"`
	BytesPerTexel uint32 `json:"bytes_per_texel"`

	// PagesPerSector is the number of page slots in one device allocation.
	PagesPerSector int `json:"pages_per_sector"`
	// FixedMipLevels counts the coarsest levels kept resident for the
	// lifetime of the texture.
	FixedMipLevels int `json:"fixed_mip_levels"`

	TileRows    int `json:"tile_rows"`
	TileColumns int `json:"tile_columns"`

	ReleasePolicy ReleasePolicy `json:"release_policy"`
	// Workers bounds the goroutines used to project the mesh. Zero or one
	// projects on the calling goroutine.
	Workers int `json:"workers"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		TextureWidth:   4096,
		TextureHeight:  4096,
		MipLevels:      5,
		BytesPerTexel:  4,
		PagesPerSector: 64,
		FixedMipLevels: 1,
		TileRows:       16,
		TileColumns:    16,
		ReleasePolicy:  ReleaseOnFence,
		Workers:        1,
		LogLevel:       "INFO",
	}
}

// LoadConfig decodes a JSON file on top of [DefaultConfig] and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "opening config")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the streamer cannot work with.
func (c Config) Validate() error {
	switch {
	case c.TextureWidth == 0 || c.TextureHeight == 0:
		return errors.Newf("texture extent %dx%d must be non-zero", c.TextureWidth, c.TextureHeight)
	case c.MipLevels == 0:
		return errors.New("mip level count must be at least 1")
	case c.BytesPerTexel == 0:
		return errors.New("bytes per texel must be non-zero")
	case c.PagesPerSector <= 0:
		return errors.Newf("pages per sector %d must be positive", c.PagesPerSector)
	case c.FixedMipLevels < 0 || c.FixedMipLevels > int(c.MipLevels):
		return errors.Newf("fixed mip levels %d out of range [0, %d]", c.FixedMipLevels, c.MipLevels)
	case c.TileRows <= 0 || c.TileColumns <= 0:
		return errors.Newf("tile grid %dx%d must be positive", c.TileRows, c.TileColumns)
	case c.Workers < 0:
		return errors.Newf("workers %d must not be negative", c.Workers)
	}
	switch c.ReleasePolicy {
	case ReleaseOnFence, ReleaseOnIdle:
	default:
		return errors.Newf("unknown release policy %q", c.ReleasePolicy)
	}
	return nil
}
