package model

// AssetResult is the final state of one requested asset.
type AssetResult struct {
	Kind        AssetKind `json:"kind"`
	Slot        string    `json:"slot,omitempty"`
	Key         string    `json:"key"`
	Acquired    bool      `json:"acquired"`
	Path        string    `json:"path,omitempty"`
	FromCache   bool      `json:"from_cache,omitempty"`
	Unsupported bool      `json:"unsupported,omitempty"`
	Attempts    int       `json:"attempts"`
	Bytes       int64     `json:"bytes,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// AssetManifest records, for one item, which assets were acquired and where.
// Exactly one manifest is produced per submitted item.
type AssetManifest struct {
	ItemID string        `json:"item_id"`
	Assets []AssetResult `json:"assets"`
}

// Complete reports whether every requested asset was acquired.
func (m *AssetManifest) Complete() bool {
	for _, a := range m.Assets {
		if !a.Acquired {
			return false
		}
	}
	return true
}

// Path returns the acquired file for the given kind and slot, or "".
func (m *AssetManifest) Path(kind AssetKind, slot string) string {
	for _, a := range m.Assets {
		if a.Kind == kind && a.Slot == slot && a.Acquired {
			return a.Path
		}
	}
	return ""
}
