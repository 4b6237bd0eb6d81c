package rule

// StringValue is a comparable wrapper around string used as the element
// type for string-valued AttributeSets (name, hash, parent-hash, serial,
// via-port). A distinct type, rather than bare string, keeps every
// AttributeSet instantiation in this package symmetric.
type StringValue string
