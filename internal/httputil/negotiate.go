package httputil

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/munnerz/goautoneg"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Output Formatters
// =============================================================================

// Formatter serializes a response value for one family of media types.
type Formatter interface {
	// MediaTypes lists the media types the formatter produces, preferred first.
	MediaTypes() []string
	// CanWrite reports whether values of runtime type t can be serialized.
	CanWrite(t reflect.Type) bool
	// Write serializes v.
	Write(w io.Writer, v interface{}) error
}

// JSONFormatter writes any value as JSON.
type JSONFormatter struct{}

func (JSONFormatter) MediaTypes() []string {
	return []string{"application/json", "text/json"}
}

func (JSONFormatter) CanWrite(reflect.Type) bool { return true }

func (JSONFormatter) Write(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// YAMLFormatter writes values as YAML. Values are normalized through JSON
// first so raw JSON items render as structured documents.
type YAMLFormatter struct{}

func (YAMLFormatter) MediaTypes() []string {
	return []string{"application/yaml", "application/x-yaml", "text/yaml"}
}

func (YAMLFormatter) CanWrite(reflect.Type) bool { return true }

func (YAMLFormatter) Write(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// XMLFormatter writes struct-shaped values and xml.Marshaler implementations.
// Slices of untyped items have no XML shape and are left to other formatters.
type XMLFormatter struct{}

var xmlMarshalerType = reflect.TypeOf((*xml.Marshaler)(nil)).Elem()

func (XMLFormatter) MediaTypes() []string {
	return []string{"application/xml", "text/xml"}
}

func (XMLFormatter) CanWrite(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(xmlMarshalerType) {
		return true
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func (XMLFormatter) Write(w io.Writer, v interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

// Negotiator picks a formatter from the Accept header and the value's runtime type.
type Negotiator struct {
	formatters []Formatter
}

// NewNegotiator creates a negotiator. With no formatters it uses JSON, YAML and XML, in that order.
func NewNegotiator(formatters ...Formatter) *Negotiator {
	if len(formatters) == 0 {
		formatters = []Formatter{JSONFormatter{}, YAMLFormatter{}, XMLFormatter{}}
	}
	return &Negotiator{formatters: formatters}
}

// Select returns the formatter and media type for accept and runtime type t.
// It returns false when no capable formatter matches an explicit Accept header.
func (n *Negotiator) Select(accept string, t reflect.Type) (Formatter, string, bool) {
	var alternatives []string
	owners := make(map[string]Formatter)
	for _, f := range n.formatters {
		if !f.CanWrite(t) {
			continue
		}
		for _, mt := range f.MediaTypes() {
			if _, taken := owners[mt]; taken {
				continue
			}
			owners[mt] = f
			alternatives = append(alternatives, mt)
		}
	}
	if len(alternatives) == 0 {
		return nil, "", false
	}

	accept = strings.TrimSpace(accept)
	if accept == "" {
		return owners[alternatives[0]], alternatives[0], true
	}

	chosen := goautoneg.Negotiate(accept, alternatives)
	if chosen == "" {
		return nil, "", false
	}
	return owners[chosen], chosen, true
}

// Write negotiates a formatter for r and writes v with status.
// The body is fully serialized before any header is written.
func (n *Negotiator) Write(w http.ResponseWriter, r *http.Request, status int, v interface{}) error {
	formatter, mediaType, ok := n.Select(r.Header.Get("Accept"), reflect.TypeOf(v))
	if !ok {
		WriteError(w, http.StatusNotAcceptable, fmt.Sprintf("no formatter for Accept %q", r.Header.Get("Accept")))
		return nil
	}

	var buf bytes.Buffer
	if err := formatter.Write(&buf, v); err != nil {
		return fmt.Errorf("format %s: %w", mediaType, err)
	}

	w.Header().Set("Content-Type", mediaType+"; charset=utf-8")
	w.Header().Add("Vary", "Accept")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
