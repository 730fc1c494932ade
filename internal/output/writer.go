package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/zx06/sshpin/internal/errors"
)

// TableFormatter 由希望以多列表格呈现的数据实现（table / csv 输出）。
// ok=false 时退回到 key/value 呈现。
type TableFormatter interface {
	ToTableData() (columns []string, rows []map[string]any, ok bool)
}

type Writer struct {
	Out io.Writer
	Err io.Writer
}

func New(out, err io.Writer) Writer {
	return Writer{Out: out, Err: err}
}

func (w Writer) WriteOK(format Format, data any) error {
	return w.write(format, OKEnvelope(data))
}

func (w Writer) WriteError(format Format, xe *errors.XError) error {
	return w.write(format, ErrorEnvelope(xe))
}

func (w Writer) write(format Format, env Envelope) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w.Out)
		enc.SetEscapeHTML(false)
		return enc.Encode(env)
	case FormatYAML:
		b, err := yaml.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := w.Out.Write(b); err != nil {
			return err
		}
		if len(b) == 0 || b[len(b)-1] != '\n' {
			_, _ = w.Out.Write([]byte("\n"))
		}
		return nil
	case FormatTable:
		return writeTable(w.Out, env)
	case FormatCSV:
		return writeCSV(w.Out, env)
	default:
		return errors.New(errors.CodeCfgInvalid, "invalid output format", map[string]any{"format": string(format)})
	}
}

func writeTable(out io.Writer, env Envelope) error {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	if !env.OK {
		_, _ = fmt.Fprintf(tw, "ok\t%v\n", false)
		if env.Error != nil {
			_, _ = fmt.Fprintf(tw, "error.code\t%s\n", env.Error.Code)
			_, _ = fmt.Fprintf(tw, "error.message\t%s\n", env.Error.Message)
			for _, k := range sortedKeys(env.Error.Details) {
				_, _ = fmt.Fprintf(tw, "error.details.%s\t%s\n", k, formatCellValue(env.Error.Details[k]))
			}
		}
		return tw.Flush()
	}

	if tf, ok := env.Data.(TableFormatter); ok {
		if cols, rows, ok := tf.ToTableData(); ok {
			_, _ = fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
			for _, row := range rows {
				cells := make([]string, len(cols))
				for i, c := range cols {
					cells[i] = formatCellValue(row[c])
				}
				_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "\n(%d rows)\n", len(rows))
			return err
		}
	}

	_, _ = fmt.Fprintf(tw, "ok\t%v\n", true)
	_, _ = fmt.Fprintf(tw, "schema_version\t%d\n", env.SchemaVersion)
	if env.Data != nil {
		b, _ := json.MarshalIndent(env.Data, "", "  ")
		_, _ = fmt.Fprintf(tw, "data\t%s\n", strings.ReplaceAll(string(b), "\n", " "))
	}
	return tw.Flush()
}

func writeCSV(out io.Writer, env Envelope) error {
	cw := csv.NewWriter(out)
	defer cw.Flush()
	if env.OK {
		if tf, ok := env.Data.(TableFormatter); ok {
			if cols, rows, ok := tf.ToTableData(); ok {
				_ = cw.Write(cols)
				for _, row := range rows {
					rec := make([]string, len(cols))
					for i, c := range cols {
						rec[i] = formatCellValue(row[c])
					}
					_ = cw.Write(rec)
				}
				cw.Flush()
				return cw.Error()
			}
		}
		_ = cw.Write([]string{"ok", "true"})
		_ = cw.Write([]string{"schema_version", fmt.Sprintf("%d", env.SchemaVersion)})
		cw.Flush()
		return cw.Error()
	}
	_ = cw.Write([]string{"ok", "false"})
	_ = cw.Write([]string{"schema_version", fmt.Sprintf("%d", env.SchemaVersion)})
	if env.Error != nil {
		_ = cw.Write([]string{"error.code", string(env.Error.Code)})
		_ = cw.Write([]string{"error.message", env.Error.Message})
	}
	cw.Flush()
	return cw.Error()
}

func formatCellValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ",")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
