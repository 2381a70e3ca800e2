// Package source loads the items to acquire assets for.
//
// The main input is the pipe-separated vocabulary export:
//
//	TargetWord|Part_of_Speech|Image|ContextSentences
//	das Haus|noun|<img src="https://example.com/haus.jpg">|Das Haus ist alt.
//
// Each row becomes one model.Item with an image request and two audio
// requests ("word" and "sentence"). Item identity is DeriveItemID(word, pos),
// so re-running over the same export maps to the same cache keys and files.
// JSON item lists (see dto.JSONItem) are accepted as well.
package source
