package app

import (
	"context"
	"io"

	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"

	"github.com/likaia/nginxpulse-exporter/internal/logsource"
)

// writeLogsPDF renders the matching log rows as a PDF table. The rows are
// collected through the same batch loop as CSV, so progress reporting and
// cooperative cancellation behave identically; only the final render is
// in-memory.
func writeLogsPDF(
	ctx context.Context,
	writer io.Writer,
	src logsource.Source,
	params map[string]string,
	lang string,
	batchSize int,
	progress func(processed, total int64),
	cancelled func() bool,
) error {
	var contents [][]string
	err := eachExportBatch(ctx, src, params, batchSize, progress, cancelled,
		func(entries []logsource.LogEntry) error {
			for i := range entries {
				contents = append(contents, buildLogExportRow(&entries[i], lang))
			}
			return nil
		})
	if err != nil {
		return err
	}

	m := pdf.NewMaroto(consts.Landscape, consts.A4)
	m.TableList(exportHeaders(lang), contents, props.TableList{
		HeaderProp:         props.TableListContent{Size: 8},
		ContentProp:        props.TableListContent{Size: 7},
		HeaderContentSpace: 1,
		Line:               true,
	})

	buf, err := m.Output()
	if err != nil {
		return err
	}
	_, err = writer.Write(buf.Bytes())
	return err
}
