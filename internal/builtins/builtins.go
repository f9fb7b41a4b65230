// Package builtins links every native plugin into the runtime registry.
package builtins

import (
	_ "github.com/xirelogy/go-lox/internal/builtins/clock"
	_ "github.com/xirelogy/go-lox/internal/builtins/length"
	_ "github.com/xirelogy/go-lox/internal/builtins/str"
	_ "github.com/xirelogy/go-lox/internal/builtins/typeof"
)
