package model

import (
	"strings"
)

// AssetKind distinguishes remotely fetched assets from synthesized ones.
type AssetKind string

const (
	// KindImage is an image fetched over HTTP.
	KindImage AssetKind = "image"

	// KindAudio is a clip produced by the speech synthesizer.
	KindAudio AssetKind = "audio"
)

// AssetRequest is one asset wanted by one item.
//
// Key is the cache key: "<item>:image" for images and "<item>:audio:<slot>"
// for clips. Ids and slots never contain ':' (see CheckID and CheckSlot), so
// distinct assets never share a key. Path is where the file ends up once
// acquired.
type AssetRequest struct {
	ItemID  string
	Kind    AssetKind
	Slot    string
	Payload string
	Key     string
	Path    string
}

func newAssetRequest(itemID string, kind AssetKind, slot, payload string, cfg *PathConfig) AssetRequest {
	key := itemID + ":" + string(kind)
	if kind == KindAudio {
		key += ":" + slot
	}
	return AssetRequest{
		ItemID:  itemID,
		Kind:    kind,
		Slot:    slot,
		Payload: payload,
		Key:     key,
		Path:    destinationPath(key, itemID, kind, slot, cfg),
	}
}

// Label is a short human-readable name for logs and progress lines.
func (r AssetRequest) Label() string {
	if r.Kind == KindAudio {
		return "audio/" + r.Slot
	}
	return string(r.Kind)
}

// Empty reports whether the request carries no usable payload.
func (r AssetRequest) Empty() bool {
	p := strings.TrimSpace(r.Payload)
	return p == "" || strings.EqualFold(p, "nan")
}
