package layout

import (
	"regexp"
	"strings"
)

var (
	// t_struct(Name)123_storage -> struct(Name)
	namedTypeID = regexp.MustCompile(`(struct|enum|contract|userDefinedValueType)\(([^)]*)\)\d+`)
	locations   = regexp.MustCompile(`_(storage_ptr|storage|memory_ptr|calldata_ptr)`)
	contractRef = regexp.MustCompile(`contract\([^)]*\)`)
	structRef   = regexp.MustCompile(`struct\([^)]*\)`)
	enumRef     = regexp.MustCompile(`enum\([^)]*\)`)
)

// Family reduces a compiler type tag to the part that decides how the value
// is encoded in storage. Two variables are type-compatible when their
// families match. Struct and enum names are dropped so a renamed type keeps
// its family; contracts are stored as addresses.
func Family(tag string) string {
	t := namedTypeID.ReplaceAllString(tag, "$1($2)")
	t = locations.ReplaceAllString(t, "")
	t = strings.ReplaceAll(t, "t_", "")
	t = strings.ReplaceAll(t, "address_payable", "address")
	t = contractRef.ReplaceAllString(t, "address")
	t = structRef.ReplaceAllString(t, "struct")
	t = enumRef.ReplaceAllString(t, "enum")
	return t
}

// SameFamily reports whether two type tags share a storage encoding
func SameFamily(a, b string) bool {
	return Family(a) == Family(b)
}
