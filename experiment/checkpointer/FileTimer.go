package checkpointer

import (
	"fmt"
	"path/filepath"
	"time"
)

// FileTimer returns a function which returns filenames in dir suffixed
// with the number of nanoseconds since January 1, 1970
func FileTimer(dir, name, extension string) func() string {
	path := filepath.Join(dir, name)
	return func() string {
		return fmt.Sprintf("%v-%v%v", path, time.Now().UnixNano(),
			extension)
	}
}
