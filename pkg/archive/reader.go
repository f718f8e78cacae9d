package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"weiboharvest/pkg/weibo"
)

// maxLine bounds a single archived post
const maxLine = 16 << 20

// Item is a replayed archive record with its post decoded
type Item struct {
	Record
	Decoded weibo.Post
}

// Replay yields the records of the archive at path in the order they were
// written. Decoding stops at the first malformed line, which is reported
// with its line number.
func Replay(path string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield(Item{}, fmt.Errorf("failed to open archive: %w", err))
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), maxLine)

		for line := 1; scanner.Scan(); line++ {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			var item Item
			if err := json.Unmarshal(scanner.Bytes(), &item.Record); err != nil {
				yield(Item{}, fmt.Errorf("%s:%d: malformed record: %w", path, line, err))
				return
			}
			if err := json.Unmarshal(item.Post, &item.Decoded); err != nil {
				yield(Item{}, fmt.Errorf("%s:%d: malformed post: %w", path, line, err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Item{}, fmt.Errorf("failed to read archive: %w", err))
		}
	}
}
