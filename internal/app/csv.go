package app

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/likaia/nginxpulse-exporter/internal/i18n"
	"github.com/likaia/nginxpulse-exporter/internal/logsource"
)

// errExportCancelled aborts an encoder when the pending-cancel flag is
// observed at a batch boundary.
var errExportCancelled = stderrors.New("export cancelled")

// writeLogsCSV streams the matching log rows as CSV: UTF-8 BOM, localized
// header, then one row per entry. progress is reported once per batch and
// cancellation is checked once per batch, never mid-write.
func writeLogsCSV(
	ctx context.Context,
	writer io.Writer,
	src logsource.Source,
	params map[string]string,
	lang string,
	batchSize int,
	progress func(processed, total int64),
	cancelled func() bool,
) error {
	if _, err := writer.Write([]byte("\ufeff")); err != nil {
		return err
	}

	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(exportHeaders(lang)); err != nil {
		return err
	}

	err := eachExportBatch(ctx, src, params, batchSize, progress, cancelled,
		func(entries []logsource.LogEntry) error {
			for i := range entries {
				if err := csvWriter.Write(buildLogExportRow(&entries[i], lang)); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// eachExportBatch pages through the log source until it runs dry, invoking
// emit per batch. This is the batch boundary of the cooperative
// cancellation contract.
func eachExportBatch(
	ctx context.Context,
	src logsource.Source,
	params map[string]string,
	batchSize int,
	progress func(processed, total int64),
	cancelled func() bool,
	emit func(entries []logsource.LogEntry) error,
) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var processed int64
	for page := 1; ; page++ {
		if cancelled() {
			return errExportCancelled
		}

		entries, total, err := src.Query(ctx, params, page, batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		if err := emit(entries); err != nil {
			return err
		}

		processed += int64(len(entries))
		progress(processed, total)

		if total > 0 && processed >= total {
			break
		}
		if len(entries) < batchSize {
			break
		}
	}
	return nil
}

func buildLogExportRow(log *logsource.LogEntry, lang string) []string {
	location := strings.TrimSpace(log.DomesticLocation)
	if location == "" {
		location = strings.TrimSpace(log.GlobalLocation)
	}
	if location == "" {
		location = "-"
	} else {
		location = i18n.Label(lang, location)
	}

	requestText := strings.TrimSpace(fmt.Sprintf("%s %s", log.Method, log.URL))
	if requestText == "" {
		requestText = "-"
	}

	pvText := i18n.Label(lang, "no")
	if log.PageviewFlag {
		pvText = i18n.Label(lang, "yes")
	}

	timeText := log.Time
	if timeText == "" && log.Timestamp > 0 {
		timeText = time.Unix(log.Timestamp, 0).Format("2006-01-02 15:04:05")
	}

	return []string{
		timeText,
		log.IP,
		location,
		requestText,
		strconv.Itoa(log.StatusCode),
		strconv.FormatInt(log.BytesSent, 10),
		orDash(lang, log.Referer),
		orDash(lang, log.UserBrowser),
		orDash(lang, log.UserOS),
		orDash(lang, log.UserDevice),
		pvText,
	}
}

func orDash(lang, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return i18n.Label(lang, value)
}

func exportHeaders(lang string) []string {
	keys := []string{"time", "ip", "location", "request", "status", "bytes", "referer", "browser", "os", "device", "pv"}
	headers := make([]string, len(keys))
	for i, key := range keys {
		headers[i] = i18n.Label(lang, key)
	}
	return headers
}
