// Package all is a meta-package that imports all generators so their
// factories are registered.
package all

import (
	_ "github.com/creditpath/captchad/lib/challenge/arith"
	_ "github.com/creditpath/captchad/lib/challenge/picture"
	_ "github.com/creditpath/captchad/lib/challenge/text"
)
