// Package tileset provides the catalog record for one uploaded image's
// tile pyramid and the catalog operations the pipeline drives.
package tileset

import (
	"time"

	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

// Status is the catalog-visible lifecycle of a tile set.
type Status string

const (
	// StatusProcessing means the stub exists but the first zoom batch has
	// not completed yet; the tile set is not user-visible.
	StatusProcessing Status = "processing"
	// StatusOK means at least the first batch is servable.
	StatusOK Status = "ok"
	// StatusRemoved marks a soft-deleted tile set.
	StatusRemoved Status = "removed"
)

// TileSet is the catalog entity for one image's tile pyramid.
//
// ZoomMask is not a plain max-zoom integer: each completed batch ORs in
// the bits for its zoom span, so a consumer can tell exactly which
// ranges are servable while higher levels are still being produced.
type TileSet struct {
	ID              uint      `gorm:"primaryKey"`
	Name            string    `gorm:"size:255;not null"`
	SourceURL       string    `gorm:"size:2048;not null"`
	Width           int       `gorm:"default:0"`
	Height          int       `gorm:"default:0"`
	MinZoom         int       `gorm:"default:0"`
	ZoomMask        zoom.Mask `gorm:"column:max_zoom;default:0"`
	BackgroundColor string    `gorm:"size:32"`
	Status          Status    `gorm:"index;size:20;default:'processing'"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// MaxServableZoom returns the highest contiguous completed zoom level.
func (t *TileSet) MaxServableZoom() int {
	return t.ZoomMask.HighestContiguous(t.MinZoom)
}
