package pretty

import (
	"os"

	"github.com/sbomtools/sbomdiff/common"
)

func Ok() error {
	common.Log("%sOK.%s", Green, Reset)
	return nil
}

func Note(format string, rest ...interface{}) {
	common.Log("%sNote: %s"+format+"%s", append(append([]interface{}{Yellow, Bold}, rest...), Reset)...)
}

func Warning(format string, rest ...interface{}) {
	common.Log("%sWarning: "+format+"%s", append(append([]interface{}{Yellow}, rest...), Reset)...)
}

func Highlight(format string, rest ...interface{}) {
	common.Log("%s"+format+"%s", append(append([]interface{}{Cyan}, rest...), Reset)...)
}

// Guard exits the process with given exitcode when the condition does
// not hold. This is the single exit path for command surfaces.
func Guard(condition bool, exitcode int, format string, rest ...interface{}) {
	if !condition {
		common.Log("%s"+format+"%s", append(append([]interface{}{Red}, rest...), Reset)...)
		Exit(exitcode)
	}
}

func Exit(code int) {
	common.WaitLogs()
	os.Exit(code)
}
