// Package util contains small generic helpers.
package util

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// functional map: (a -> b) -> [a] -> [b]
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// JoinInts renders a list of ints separated by sep.
func JoinInts(is []int, sep string) string {
	return strings.Join(Map(strconv.Itoa, is), sep)
}

// Stringify renders a value as JSON for logging, falling back to the Go syntax representation.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
