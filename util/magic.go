// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package util

import (
	"github.com/vimeo/go-magic/magic"
)

// MagicFromFile returns a libmagic type string for the file at the given
// path, using the system default magic database. The sandbox does its own
// format detection server-side; this is only a local hint for the user.
func MagicFromFile(path string) string {
	cookie := magic.Open(magic.MAGIC_ERROR | magic.MAGIC_NONE)
	defer magic.Close(cookie)
	if magic.Load(cookie, "") != 0 {
		return "unknown file type"
	}
	return magic.File(cookie, path)
}
