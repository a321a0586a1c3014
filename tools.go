//go:build tools

package netthrottle

import (
	_ "go.uber.org/mock/mockgen"
)
