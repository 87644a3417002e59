// Package journal keeps an append-only record of comparison runs under
// the product home. One line per event, space-unified free text.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/xviper"
)

var writeLock sync.Mutex

type Event struct {
	When     int64  `json:"when"`
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
	Event    string `json:"event"`
	Detail   string `json:"detail"`
}

func journalLocation() string {
	return filepath.Join(common.JournalLocation(), "event.log")
}

// Unify collapses all whitespace runs to single spaces.
func Unify(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// Post appends one event. Failures are uncritical: a run never dies on
// journal bookkeeping.
func Post(kind, event, detail string, fields ...interface{}) error {
	message := Event{
		When:     time.Now().Unix(),
		Identity: xviper.InstallationIdentity(),
		Kind:     Unify(kind),
		Event:    Unify(event),
		Detail:   Unify(fmt.Sprintf(detail, fields...)),
	}
	blob, err := json.Marshal(message)
	if err != nil {
		return err
	}
	writeLock.Lock()
	defer writeLock.Unlock()
	handle, err := os.OpenFile(journalLocation(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		common.Uncritical("journal", err)
		return err
	}
	defer handle.Close()
	fmt.Fprintln(handle, string(blob))
	return nil
}

// Events reads the full journal, oldest first. Lines that fail to
// decode are skipped.
func Events() ([]Event, error) {
	handle, err := os.Open(journalLocation())
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer handle.Close()

	result := make([]Event, 0, 64)
	scanner := bufio.NewScanner(handle)
	for scanner.Scan() {
		event := Event{}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		result = append(result, event)
	}
	return result, scanner.Err()
}
