package model

import (
	"encoding/json"
	"maps"
)

// Clone returns a copy of the lot that shares nothing mutable with l
// except the auction registration, which is shared by design of the
// registration registry.
func (l *LotRecord) Clone() *LotRecord {
	if l == nil {
		return nil
	}
	c := *l

	if l.Auction != nil {
		a := *l.Auction
		c.Auction = &a
	}
	if l.AbsenteeBid != nil {
		b := *l.AbsenteeBid
		c.AbsenteeBid = &b
	}
	if l.WebModule != nil {
		w := *l.WebModule
		c.WebModule = &w
	}
	if l.Bids != nil {
		c.Bids = make([]Bid, len(l.Bids))
		copy(c.Bids, l.Bids)
	}
	if l.Annotations != nil {
		c.Annotations = maps.Clone(l.Annotations)
	}
	if l.Fields != nil {
		c.Fields = make(map[string]json.RawMessage, len(l.Fields))
		for k, v := range l.Fields {
			c.Fields[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// Extend shallow-merges a fresher copy of the lot into l: every named
// server field is overwritten, Fields are merged key by key, and l keeps
// its own WebModule and Annotations.
func (l *LotRecord) Extend(src *LotRecord) {
	if src == nil {
		return
	}
	webModule, annotations := l.WebModule, l.Annotations
	fields := l.Fields

	*l = *src
	l.WebModule, l.Annotations = webModule, annotations
	if src.WebModule != nil {
		l.WebModule = src.WebModule
	}
	for k, v := range src.Annotations {
		l.SetAnnotation(k, v)
	}

	merged := make(map[string]json.RawMessage, len(fields)+len(src.Fields))
	maps.Copy(merged, fields)
	maps.Copy(merged, src.Fields)
	if len(merged) > 0 {
		l.Fields = merged
	} else {
		l.Fields = nil
	}
}
