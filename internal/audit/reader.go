package audit

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/yanun0323/errors"
)

// ReadActions loads every action from a JSONL audit file, oldest first.
// A missing file yields an empty history, not an error.
func ReadActions(path string) ([]Action, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var actions []Action
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var action Action
		if err := json.Unmarshal(line, &action); err != nil {
			return nil, errors.Wrap(err, "decode audit line")
		}
		actions = append(actions, action)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}
