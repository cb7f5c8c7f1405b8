package model

// Depth selects which content types a scan covers.
type Depth int

const (
	DepthPages      Depth = 1
	DepthPagesPosts Depth = 2
	DepthAllTypes   Depth = 3
	// DepthDeep is reserved for comment scanning and currently equals DepthAllTypes.
	DepthDeep Depth = 4

	DefaultDepth = DepthPagesPosts
)

// Built-in content types.
const (
	TypePage = "page"
	TypePost = "post"
)

// Valid reports whether d is one of the defined depths.
func (d Depth) Valid() bool {
	return d >= DepthPages && d <= DepthDeep
}

// ContentTypes maps a depth to the document types it includes. registered
// is the catalog's list of public types in registration order.
func (d Depth) ContentTypes(registered []string) []string {
	switch d {
	case DepthPages:
		return []string{TypePage}
	case DepthAllTypes, DepthDeep:
		if len(registered) == 0 {
			return []string{TypePage, TypePost}
		}
		out := make([]string, len(registered))
		copy(out, registered)
		return out
	default:
		return []string{TypePage, TypePost}
	}
}
