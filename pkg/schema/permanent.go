package schema

import "time"

// Permanent is embedded into models that are soft-deleted.
//
//	type Post struct {
//	    ID    int64  `po:"id,primaryKey,bigserial"`
//	    Title string `po:"title,text,notNull"`
//	    schema.Permanent
//	}
type Permanent struct {
	Removed *time.Time `po:"removed,timestamptz,softDelete"`
}

// IsRemoved reports whether the record carries a removed-at stamp.
func (p Permanent) IsRemoved() bool {
	return p.Removed != nil
}
