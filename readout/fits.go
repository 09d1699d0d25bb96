package readout

import (
	"io"

	"github.com/astrogo/fitsio"
)

// WriteFITS streams one aggregated line to w as a 16-bit FITS image of
// height 1.  The BZERO/BSCALE pair maps the unsigned data onto FITS'
// signed 16-bit words.
func WriteFITS(w io.Writer, metadata []fitsio.Card, line []uint16) error {
	metadata = append(metadata,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{len(line), 1})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	ints := make([]int16, len(line))
	for i := 0; i < len(line); i++ {
		ints[i] = int16(line[i] - 32768)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
