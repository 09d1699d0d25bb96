package readout

import (
	"encoding/json"
	"go/types"
	"net/http"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/spectrobench/linescan/generichttp"
	"github.com/spectrobench/linescan/util"
)

// Exposurer controls the sensor's exposure time; the simulator and any
// real shutter driver both satisfy it
type Exposurer interface {
	// SetExposureTime sets the exposure time
	SetExposureTime(time.Duration) error

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)
}

// HTTPReadout exposes a Controller, and optionally the sensor's exposure
// control, over HTTP.  BindRoutes via the route table.
type HTTPReadout struct {
	// C is the underlying acquisition chain
	C *Controller

	// Exp is the exposure control, nil if the sensor does not offer one
	Exp Exposurer

	// RouteTable maps method/path pairs to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPReadout returns a new HTTP wrapper with the route table
// pre-configured
func NewHTTPReadout(c *Controller, exp Exposurer) HTTPReadout {
	h := HTTPReadout{C: c, Exp: exp}
	rt := generichttp.RouteTable{}
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/line"}] = h.GetLine
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/flag"}] = h.GetFlag
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/flag/clear"}] = h.ClearFlag
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = h.GetStatus
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/arm"}] = h.Arm
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/disarm"}] = h.Disarm
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/averaging"}] = h.GetAveraging
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/averaging"}] = h.SetAveraging
	if exp != nil {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure-time"}] = h.GetExposureTime
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure-time"}] = h.SetExposureTime
	}
	h.RouteTable = rt
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPReadout) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetLine returns the most recent completed line without clearing the
// data-ready flag.  The format may be selected with the fmt query
// parameter: json (default), csv, or fits.
func (h HTTPReadout) GetLine(w http.ResponseWriter, r *http.Request) {
	line := h.C.Line()
	switch r.URL.Query().Get("fmt") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(struct {
			Line []uint16 `json:"line"`
		}{line})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(util.Uint16SliceToCSV(line)))
	case "fits":
		cards := []fitsio.Card{
			{Name: "NPIX", Value: NPIX, Comment: "active pixels"},
			{Name: "NBIT", Value: NBIT, Comment: "significant bits"},
			{Name: "PADDING", Value: Padding, Comment: "timing margin, words"},
			{Name: "NAVG", Value: h.C.Averaging(), Comment: "exposures per line"},
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=line.fits")
		err := WriteFITS(w, cards, line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be one of json, csv, fits", http.StatusBadRequest)
	}
}

// GetFlag returns true if the data-ready flag is set
func (h HTTPReadout) GetFlag(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.C.Flag() == DataReady}
	hp.EncodeAndRespond(w, r)
}

// ClearFlag resets the data-ready flag on behalf of the consumer
func (h HTTPReadout) ClearFlag(w http.ResponseWriter, r *http.Request) {
	h.C.ClearFlag()
	w.WriteHeader(http.StatusOK)
}

// GetStatus returns a snapshot of the chain as JSON
func (h HTTPReadout) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.C.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Arm enables the chain.  Arm before the sensor starts scanning.
func (h HTTPReadout) Arm(w http.ResponseWriter, r *http.Request) {
	h.C.Arm()
	w.WriteHeader(http.StatusOK)
}

// Disarm disables the chain between cycles
func (h HTTPReadout) Disarm(w http.ResponseWriter, r *http.Request) {
	h.C.Disarm()
	w.WriteHeader(http.StatusOK)
}

// GetAveraging returns the configured exposures per line
func (h HTTPReadout) GetAveraging(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Int, Int: h.C.Averaging()}
	hp.EncodeAndRespond(w, r)
}

// SetAveraging configures the exposures per line from json {'int': n}.
// Rejected while the chain is armed.
func (h HTTPReadout) SetAveraging(w http.ResponseWriter, r *http.Request) {
	i := generichttp.IntT{}
	err := json.NewDecoder(r.Body).Decode(&i)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.C.SetAveraging(i.Int)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetExposureTime sets the exposure time on a POST request.  It can be
// provided either as a query parameter exposureTime, formatted in a way
// that is parseable by time.ParseDuration, or a json payload with key
// f64, holding the exposure time in seconds.
func (h HTTPReadout) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	texp := q.Get("exposureTime")
	var d time.Duration
	var err error
	if texp == "" {
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		d = time.Duration(int(f.F64*1e9)) * time.Nanosecond // 1e9 s => ns
	} else {
		if util.AllElementsNumbers(texp) {
			texp = texp + "s"
		}
		d, err = time.ParseDuration(texp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Exp.SetExposureTime(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetExposureTime gets the exposure time on a GET request, in seconds
func (h HTTPReadout) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	d, err := h.Exp.GetExposureTime()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: d.Seconds()}
	hp.EncodeAndRespond(w, r)
}
