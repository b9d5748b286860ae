// Package autocomplete drives @mention and #hashtag suggestions for a
// compose view.
//
// A Controller looks at the character before the typed prefix to pick a
// trigger mode, asks the router for matching candidates and keeps the newest
// result set. Each published result set replaces and disposes the previous
// one; reads run under a read lock so a result set is never closed while it
// is being read.
//
//	c := autocomplete.New(router.New(store), autocomplete.Options{
//	    Preferences: store,
//	    Worker:      w,
//	    Source:      autocomplete.StaticText{Body: "hello @mar", Caret: 10},
//	})
//	defer c.Close()
//
//	if err := c.Filter(ctx, "mar"); err != nil {
//	    return err
//	}
//	for i := 0; i < c.Len(); i++ {
//	    fields, _ := c.ProjectForDisplay(i)
//	    fmt.Println(fields.Primary, fields.Secondary)
//	}
package autocomplete
