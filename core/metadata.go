package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved metadata keys written by the transport after a tool cycle.
const (
	MetaRequests = "requests"
	MetaResults  = "results"
)

// AttrKind discriminates the closed set of metadata values.
type AttrKind string

const (
	AttrText     AttrKind = "text"
	AttrRequests AttrKind = "requests"
	AttrResults  AttrKind = "results"
)

// Attr is a node metadata value: a text value, a tool request list or a tool
// result list. Exactly one payload field is meaningful, selected by Kind.
type Attr struct {
	Kind     AttrKind
	Text     string
	Requests []Request
	Results  []Result
}

// TextAttr returns a text attribute.
func TextAttr(s string) Attr { return Attr{Kind: AttrText, Text: s} }

// RequestsAttr returns a tool request list attribute.
func RequestsAttr(reqs []Request) Attr { return Attr{Kind: AttrRequests, Requests: reqs} }

// ResultsAttr returns a tool result list attribute.
func ResultsAttr(res []Result) Attr { return Attr{Kind: AttrResults, Results: res} }

// ValueAttr converts an arbitrary value into a text attribute. Strings are
// kept verbatim; everything else is stringified, with JSON preferred for
// composite values, so that no value is dropped.
func ValueAttr(v any) Attr {
	switch x := v.(type) {
	case Attr:
		return x
	case string:
		return TextAttr(x)
	case fmt.Stringer:
		return TextAttr(x.String())
	case nil:
		return TextAttr("")
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return TextAttr(fmt.Sprint(x))
	}
	if b, err := json.Marshal(v); err == nil {
		return TextAttr(string(b))
	}
	return TextAttr(fmt.Sprint(v))
}

func (a Attr) clone() Attr {
	if a.Requests != nil {
		reqs := make([]Request, len(a.Requests))
		for i, r := range a.Requests {
			reqs[i] = CloneRequest(r)
		}
		a.Requests = reqs
	}
	if a.Results != nil {
		a.Results = append([]Result(nil), a.Results...)
	}
	return a
}

type wireAttr struct {
	Kind     AttrKind  `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Requests []Request `json:"requests,omitempty"`
	Results  []Result  `json:"results,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Attr) MarshalJSON() ([]byte, error) {
	kind := a.Kind
	if kind == "" {
		kind = AttrText
	}
	return json.Marshal(wireAttr{Kind: kind, Text: a.Text, Requests: a.Requests, Results: a.Results})
}

// UnmarshalJSON implements json.Unmarshaler. A bare JSON value is accepted
// and stringified into a text attribute.
func (a *Attr) UnmarshalJSON(data []byte) error {
	var w wireAttr
	if err := json.Unmarshal(data, &w); err == nil && w.Kind != "" {
		switch w.Kind {
		case AttrText, AttrRequests, AttrResults:
		default:
			return fmt.Errorf("unknown metadata kind %q", w.Kind)
		}
		*a = Attr{Kind: w.Kind, Text: w.Text, Requests: w.Requests, Results: w.Results}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = ValueAttr(raw)
	return nil
}

// Metadata holds the extra attributes attached to a conversation node.
type Metadata map[string]Attr

// Clone returns a deep copy; a nil receiver yields nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

// Requests returns the tool requests recorded under MetaRequests.
func (m Metadata) Requests() []Request {
	return m[MetaRequests].Requests
}

// Results returns the tool results recorded under MetaResults.
func (m Metadata) Results() []Result {
	return m[MetaResults].Results
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
