// Package router builds and runs the prefix-match queries behind autocomplete.
//
// A trigger mode picks the cache: ModeMention queries cached users by screen
// name or display name, ModeHashtag queries cached hashtags by name. The typed
// prefix is escaped so '_' matches only itself:
//
//	d := router.NewDescriptor(types.ModeMention, "a_b")
//	// d.EscapedPrefix == "a^_b"
//	h, err := router.New(store).Route(ctx, d)
//
// The prefix is bound as a query argument; predicates only carry placeholders
// and declare ESCAPE '^'.
package router
