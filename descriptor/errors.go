package descriptor

import "errors"

// ErrDescriptorTooShort is returned by a Parse*Descriptor function when
// data is shorter than the descriptor's fixed size.
var ErrDescriptorTooShort = errors.New("descriptor too short")

// ErrDescriptorTypeMismatch is returned by a Parse*Descriptor function
// when data's bDescriptorType byte does not match the function's type.
var ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
