// Package errors formats aggregated cleanup errors for single-line log and result output.
package errors

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// formatInline renders es as "<n> errors: a; b". Newlines inside a message are
// flattened so the result file and the log keep one line per failure.
func formatInline(es []error) string {
	msgs := make([]string, 0, len(es))
	for _, err := range es {
		if err == nil {
			continue
		}
		msgs = append(msgs, strings.Join(strings.Fields(err.Error()), " "))
	}

	switch len(msgs) {
	case 0:
		return "no errors"
	case 1:
		return msgs[0]
	default:
		return strconv.Itoa(len(msgs)) + " errors: " + strings.Join(msgs, "; ")
	}
}

// FormatErrorOrNil returns nil when err holds no errors, otherwise err rendered on
// a single line
func FormatErrorOrNil(err *multierror.Error) error {
	if err != nil {
		err.ErrorFormat = formatInline
	}
	return err.ErrorOrNil()
}
