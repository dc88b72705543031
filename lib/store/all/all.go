// Package all is a meta-package that imports all store implementations so
// their factories are registered.
package all

import (
	_ "github.com/creditpath/captchad/lib/store/bbolt"
	_ "github.com/creditpath/captchad/lib/store/memory"
	_ "github.com/creditpath/captchad/lib/store/sqlite"
	_ "github.com/creditpath/captchad/lib/store/valkey"
)
