// Package generichttp provides the plumbing shared by the HTTP
// interfaces in this repository: a route table keyed on method and path
// that binds onto a chi router, and a payload type for replying with
// basic values as JSON.
package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and URL path pair
type MethodPath struct {
	Method string

	Path string
}

// RouteTable maps method/path pairs to their handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches each route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// Endpoints returns the method/path pairs present in the table
func (rt RouteTable) Endpoints() []string {
	eps := make([]string, 0, len(rt))
	for mp := range rt {
		eps = append(eps, mp.Method+" "+mp.Path)
	}
	return eps
}

// HTTPer is a type which can yield its route table
type HTTPer interface {
	RT() RouteTable
}

// FloatT holds a float64 for JSON de/encoding
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT holds an int for JSON de/encoding
type IntT struct {
	Int int `json:"int"`
}

// BoolT holds a bool for JSON de/encoding
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT holds a string for JSON de/encoding
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload holds one basic value; T tags which field is live
type HumanPayload struct {
	T types.BasicKind

	Bool bool

	Int int

	Float float64

	String string
}

// EncodeAndRespond writes the payload to w as JSON with the conventional
// single-key shape ({"f64": ...}, {"int": ...}, and so on)
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var obj interface{}
	switch hp.T {
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.String:
		obj = StrT{Str: hp.String}
	default:
		http.Error(w, "unsupported payload type", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
