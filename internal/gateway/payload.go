package gateway

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
)

// RawPayload is an inbound callback as received, before any rail logic.
type RawPayload struct {
	Method      string
	ContentType string
	Header      http.Header
	Body        []byte
	Query       url.Values
}

// Fields is the flat key/value view of a payload. Nested JSON is flattened to
// dotted paths with array indexes, e.g. "event.data.payments.0.transaction_id".
type Fields map[string]string

func (f Fields) Get(key string) string { return f[key] }

// First returns the first non-empty value among keys.
func (f Fields) First(keys ...string) string {
	for _, k := range keys {
		if v := f[k]; v != "" {
			return v
		}
	}
	return ""
}

func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// ParseResult is either Parsed (Recognized true) or Unrecognized.
type ParseResult struct {
	Fields     Fields
	Recognized bool
}

func parsed(f Fields) ParseResult { return ParseResult{Fields: f, Recognized: true} }

var Unrecognized = ParseResult{}

type Parser interface {
	Parse(raw RawPayload) ParseResult
}

// DefaultParsers is the order payloads are tried in: a JSON body, a form body,
// then the query string.
var DefaultParsers = []Parser{JSONParser{}, FormParser{}, QueryParser{}}

// ParsePayload returns the fields of the first parser that recognizes raw.
func ParsePayload(raw RawPayload, parsers ...Parser) (Fields, error) {
	if len(parsers) == 0 {
		parsers = DefaultParsers
	}
	for _, p := range parsers {
		if res := p.Parse(raw); res.Recognized {
			return res.Fields, nil
		}
	}
	return nil, apperr.New(apperr.KindMalformedPayload, "unrecognized callback payload")
}

type JSONParser struct{}

func (JSONParser) Parse(raw RawPayload) ParseResult {
	body := strings.TrimSpace(string(raw.Body))
	if body == "" {
		return Unrecognized
	}
	if mediaType(raw.ContentType) != "application/json" && body[0] != '{' {
		return Unrecognized
	}
	if !gjson.Valid(body) {
		return Unrecognized
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return Unrecognized
	}
	out := Fields{}
	flatten("", root, out)
	return parsed(out)
}

func flatten(prefix string, r gjson.Result, out Fields) {
	if !r.IsObject() && !r.IsArray() {
		if prefix != "" {
			out[prefix] = r.String()
		}
		return
	}
	isArray := r.IsArray()
	i := 0
	r.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if isArray {
			key = strconv.Itoa(i)
			i++
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		flatten(key, v, out)
		return true
	})
}

type FormParser struct{}

func (FormParser) Parse(raw RawPayload) ParseResult {
	if mediaType(raw.ContentType) != "application/x-www-form-urlencoded" || len(raw.Body) == 0 {
		return Unrecognized
	}
	vals, err := url.ParseQuery(string(raw.Body))
	if err != nil || len(vals) == 0 {
		return Unrecognized
	}
	return parsed(fromValues(vals))
}

type QueryParser struct{}

func (QueryParser) Parse(raw RawPayload) ParseResult {
	if len(raw.Query) == 0 {
		return Unrecognized
	}
	return parsed(fromValues(raw.Query))
}

func fromValues(vals url.Values) Fields {
	out := make(Fields, len(vals))
	for k, v := range vals {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}
