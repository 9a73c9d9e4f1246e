// Package assert holds constructor preconditions, a failed one is a
// programming error and panics.
package assert

import "fmt"

func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic(fmt.Sprintf("%s must not be empty", name))
	}
}
