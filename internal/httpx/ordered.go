package httpx

import "strings"

// Field is a single lowercase-name/value header pair, matching the scope's
// wire representation: an ordered sequence of [name, value] byte pairs.
type Field struct {
	Name  []byte
	Value []byte
}

// OrderedFields returns h as a slice of lowercase-name fields. Within a
// key, values keep the order they were added; the order of distinct keys
// is not defined, because h's own storage (map[string][]string) does not
// record it. Multiple Cookie header lines are coalesced into a single
// field joined with "; " and placed last, matching the scope contract's
// cookie handling.
//
// Callers that need wire-faithful ordering build fields incrementally
// during parsing with a FieldAppender instead of calling this on an
// already-parsed Header.
func (h Header) OrderedFields() []Field {
	cookies := h.Values("Cookie")
	fields := make([]Field, 0, len(h))
	for k, vals := range h {
		if k == "Cookie" {
			continue
		}
		lower := strings.ToLower(k)
		for _, v := range vals {
			fields = append(fields, Field{Name: []byte(lower), Value: []byte(v)})
		}
	}
	if len(cookies) > 0 {
		fields = append(fields, Field{Name: []byte("cookie"), Value: []byte(strings.Join(cookies, "; "))})
	}
	return fields
}

// FieldAppender builds an ordered Field slice incrementally, in the exact
// order header lines were read off the wire, coalescing repeated Cookie
// lines as they arrive rather than after the fact.
type FieldAppender struct {
	fields    []Field
	cookieIdx int // index+1 into fields of the coalesced cookie field, 0 if none yet
}

// Add appends one wire header line to the ordered sequence.
func (a *FieldAppender) Add(name, value string) {
	lower := strings.ToLower(name)
	if lower == "cookie" {
		if a.cookieIdx == 0 {
			a.fields = append(a.fields, Field{Name: []byte("cookie"), Value: []byte(value)})
			a.cookieIdx = len(a.fields)
			return
		}
		f := &a.fields[a.cookieIdx-1]
		f.Value = append(append(f.Value, "; "...), value...)
		return
	}
	a.fields = append(a.fields, Field{Name: []byte(lower), Value: []byte(value)})
}

// Fields returns the accumulated ordered fields.
func (a *FieldAppender) Fields() []Field { return a.fields }
