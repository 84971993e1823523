package tileset

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

// ErrNotFound is returned when no tile set exists for the given id.
var ErrNotFound = errors.New("tileset: not found")

// Catalog persists tile sets. The pipeline is its only writer: stubs are
// inserted when a tiling request is accepted, activated by the first
// batch, accumulated by later batches, and deleted if the first batch
// never completes.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog creates a GORM-backed catalog.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Migrate creates the tile set table.
func (c *Catalog) Migrate(ctx context.Context) error {
	return c.db.WithContext(ctx).AutoMigrate(&TileSet{})
}

// InsertStub creates a processing-state stub for an accepted tiling
// request and returns its id.
func (c *Catalog) InsertStub(ctx context.Context, name, sourceURL string) (uint, error) {
	ts := &TileSet{
		Name:      name,
		SourceURL: sourceURL,
		Status:    StatusProcessing,
	}
	if err := c.db.WithContext(ctx).Create(ts).Error; err != nil {
		return 0, err
	}
	return ts.ID, nil
}

// Activate is the first-batch catalog update: the stub transitions from
// processing to ok with dimensions, background color, and min zoom set,
// and the zoom completion mask initialized. Idempotent on re-run: the
// mask is OR'd, not overwritten.
func (c *Catalog) Activate(ctx context.Context, id uint, width, height, minZoom int, backgroundColor string, mask zoom.Mask) error {
	result := c.db.WithContext(ctx).
		Model(&TileSet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           StatusOK,
			"width":            width,
			"height":           height,
			"min_zoom":         minZoom,
			"background_color": backgroundColor,
			"max_zoom":         gorm.Expr("max_zoom | ?", uint64(mask)),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AccumulateMask ORs a completed batch's zoom bits into the mask.
// Batches finish out of order; OR keeps accumulation commutative and a
// duplicate completion a no-op.
func (c *Catalog) AccumulateMask(ctx context.Context, id uint, mask zoom.Mask) error {
	result := c.db.WithContext(ctx).
		Model(&TileSet{}).
		Where("id = ?", id).
		Update("max_zoom", gorm.Expr("max_zoom | ?", uint64(mask)))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStub removes a tile set whose mandatory first batch never
// completed, so no catalog entry referencing missing tiles survives.
func (c *Catalog) DeleteStub(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Delete(&TileSet{}, id).Error
}

// Get retrieves a tile set by id.
func (c *Catalog) Get(ctx context.Context, id uint) (*TileSet, error) {
	var ts TileSet
	err := c.db.WithContext(ctx).First(&ts, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
