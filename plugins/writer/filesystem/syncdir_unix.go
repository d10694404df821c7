//go:build !windows

package filesystem

import "os"

// syncDir 同步父目录元数据，使 rename 落盘。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
