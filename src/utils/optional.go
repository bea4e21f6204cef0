package utils

import "encoding/json"

/*
A value that may or may not have been provided. Unlike a pointer, this can tell
"set to null" apart from "not provided" when T is itself a pointer, which is
what partial updates need.

When decoding JSON, a key that is present (even as null) marks the value as set.
*/
type Optional[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}
