// Package model defines the core data structures shared by the acquisition
// engine.
//
// # Item
//
// Item is one vocabulary entry. It expands into asset requests:
//
//	item := &model.Item{ID: model.DeriveID("Haus", "noun"), Image: url, Audio: audio}
//	for _, req := range item.Requests(model.DefaultPathConfig("media")) {
//	    fmt.Println(req.Key, req.Path)
//	}
//
// # Outcomes
//
// Every fetch or synthesis attempt yields an AttemptOutcome whose Signal
// (Success, RateLimited, TransientError, PermanentError) drives retries and
// the concurrency governor.
//
// # Manifests
//
// AssetManifest is the per-item result handed to packaging: for each
// requested asset it records whether it was acquired and at which path.
package model
