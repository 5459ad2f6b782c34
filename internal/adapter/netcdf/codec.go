// Package netcdf reads and writes domain grids as NetCDF files.
//
// Classic files (CDF-1/CDF-2) are read and written with ctessum/cdf. NetCDF-4
// files, which are HDF5 containers and the format CDS delivers, are read with
// batchatco/go-native-netcdf. Output is always classic NetCDF so any reader can
// open the stored grids.
package netcdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// ErrUnsupportedFormat is returned for files that are neither classic NetCDF
// nor HDF5.
var ErrUnsupportedFormat = errors.New("unsupported grid file format")

// Global attributes carrying the grid CRS.
const (
	AttrCRS    = "crs"
	AttrCRSWKT = "crs_wkt"
)

// wgs84WKT is written alongside AttrCRS for EPSG:4326 grids.
const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`

var (
	magicCDF  = []byte("CDF")
	magicHDF5 = []byte("\x89HDF\r\n\x1a\n")
)

// Format identifies the on-disk container.
type Format string

const (
	FormatClassic Format = "classic"
	FormatHDF5    Format = "hdf5"
)

// Sniff reports the container format of the file at path.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(magicHDF5))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read header %s: %w", path, err)
	}
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, magicHDF5):
		return FormatHDF5, nil
	case bytes.HasPrefix(head, magicCDF) && len(head) > 3 && (head[3] == 1 || head[3] == 2):
		return FormatClassic, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Decode reads the grid stored at path. Coordinate variables become
// dimensions, _FillValue and missing_value cells become NaN, and packed
// values are unpacked with scale_factor and add_offset.
func Decode(path string) (*domain.Grid, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, err
	}
	var g *domain.Grid
	switch format {
	case FormatClassic:
		g, err = decodeClassic(path)
	case FormatHDF5:
		g, err = decodeHDF5(path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	finishGrid(g)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}

// finishGrid lifts the CRS out of the global attributes.
func finishGrid(g *domain.Grid) {
	if g.Attrs == nil {
		return
	}
	if crs := g.Attrs[AttrCRS]; crs != "" {
		g.CRS = crs
	} else if wkt := g.Attrs[AttrCRSWKT]; strings.Contains(wkt, `"EPSG","4326"`) {
		g.CRS = domain.CRSWGS84
	}
	delete(g.Attrs, AttrCRS)
	delete(g.Attrs, AttrCRSWKT)
}

// Codec exposes Decode and Encode as a value for callers that take a grid
// codec interface.
type Codec struct{}

func (Codec) Decode(path string) (*domain.Grid, error) { return Decode(path) }

func (Codec) Encode(path string, g *domain.Grid) error { return Encode(path, g) }
