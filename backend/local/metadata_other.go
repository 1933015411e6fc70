//go:build !linux

package local

import (
	"os"
	"time"
)

func accessTime(fi os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}

func birthTime(fi os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
