// Package types provides shared type definitions for composecomplete.
//
// # Core Types
//
// TriggerMode selects which cache a completion queries. The rune preceding
// the typed prefix decides it:
//
//	types.ModeForTrigger('@')      // ModeMention
//	types.ModeForTrigger('＠')      // ModeMention (full-width at sign)
//	types.ModeForTrigger('#')      // ModeHashtag
//
// Candidate is a tagged union of a cached user and a cached hashtag:
//
//	user := types.Candidate{
//	    Kind:       types.KindUser,
//	    ID:         42,
//	    Name:       "Mario",
//	    ScreenName: "mario",
//	}
//
// ResultHandle is the contract every result set honors: indexed column
// access plus an idempotent Close. Owners must stop reading once Close has
// been called.
//
// DisplayFields is what a suggestion row renders: primary and secondary text
// plus an ImageDirective.
package types
