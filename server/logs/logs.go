/******************************************************************************
 *
 *  Description :
 *    Package exposes info, warning and error loggers shared by the live core.
 *
 *****************************************************************************/
package logs

import (
	"io"
	"log"
	"os"
)

var (
	Info    *log.Logger
	Warning *log.Logger
	Error   *log.Logger
)

// Init sets up the package-level loggers. Tests may pass io.Discard.
func Init(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	Info = log.New(out, "I", log.LstdFlags|log.Lshortfile)
	Warning = log.New(out, "W", log.LstdFlags|log.Lshortfile)
	Error = log.New(out, "E", log.LstdFlags|log.Lshortfile)
}

func init() {
	// Default destination; main may re-Init with a log file.
	Init(os.Stdout)
}
