package browser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// listenConsole forwards console and exception events until the tab closes.
func (p *Page) listenConsole() {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			p.emit(consoleRecordFromAPICall(e))
		case *cdpruntime.EventExceptionThrown:
			if rec, ok := consoleRecordFromException(e); ok {
				p.emit(rec)
			}
		}
	})
}

func consoleRecordFromAPICall(e *cdpruntime.EventConsoleAPICalled) schemas.ConsoleRecord {
	var text strings.Builder
	for i, arg := range e.Args {
		if arg == nil {
			continue
		}
		if i > 0 {
			text.WriteString(" ")
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			fmt.Fprintf(&text, "%v", val)
		case arg.Description != "":
			text.WriteString(arg.Description)
		default:
			fmt.Fprintf(&text, "[%s]", arg.Type)
		}
	}
	return schemas.ConsoleRecord{
		Timestamp: timestamp(e.Timestamp),
		Type:      string(e.Type),
		Text:      text.String(),
		Source:    "console-api",
	}
}

func consoleRecordFromException(e *cdpruntime.EventExceptionThrown) (schemas.ConsoleRecord, bool) {
	if e.ExceptionDetails == nil {
		return schemas.ConsoleRecord{}, false
	}
	text := e.ExceptionDetails.Text
	if ex := e.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
		text = ex.Description
	}
	return schemas.ConsoleRecord{
		Timestamp: timestamp(e.Timestamp),
		Type:      "exception",
		Text:      text,
		Source:    "runtime",
	}, true
}

func timestamp(ts *cdpruntime.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}
