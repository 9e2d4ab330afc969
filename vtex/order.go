package vtex

import "cmp"

// PageKey orders pages for processing: mip level first, then column, then
// row, all ascending.
type PageKey struct {
	Mip    int
	Column int
	Row    int
}

// Compare returns -1, 0 or +1 like [cmp.Compare].
func (k PageKey) Compare(o PageKey) int {
	if c := cmp.Compare(k.Mip, o.Mip); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Column, o.Column); c != 0 {
		return c
	}
	return cmp.Compare(k.Row, o.Row)
}
