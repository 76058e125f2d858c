package logsource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/likaia/nginxpulse-exporter/internal/errors"
)

const logTable = "exporter.access_log"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sortColumns = map[string]string{
	"timestamp":  "ts",
	"ip":         "ip",
	"url":        "url",
	"status":     "status_code",
	"bytes_sent": "bytes_sent",
}

// Postgres reads the dashboard's enriched access-log table.
type Postgres struct {
	pool func() (*pgxpool.Pool, error)
}

// NewPostgres wraps a pool accessor so the source follows the store's
// connection lifecycle instead of holding its own.
func NewPostgres(pool func() (*pgxpool.Pool, error)) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Query(ctx context.Context, params map[string]string, page, pageSize int) ([]LogEntry, int64, error) {
	db, err := p.pool()
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1000
	}

	where, err := buildFilters(params)
	if err != nil {
		return nil, 0, err
	}

	countQuery := psql.Select("count(*)").From(logTable)
	listQuery := psql.Select(
		"ts", "ip", "method", "url", "status_code", "bytes_sent",
		"referer", "browser", "os", "device", "location_cn", "location_global", "pageview",
	).From(logTable)
	for _, cond := range where {
		countQuery = countQuery.Where(cond)
		listQuery = listQuery.Where(cond)
	}

	if params["distinctIp"] == "true" {
		countQuery = psql.Select("count(DISTINCT ip)").From(logTable)
		for _, cond := range where {
			countQuery = countQuery.Where(cond)
		}
		listQuery = listQuery.Options("DISTINCT ON (ip)")
	}

	sortCol := sortColumns[params["sortField"]]
	if sortCol == "" {
		sortCol = "ts"
	}
	order := "DESC"
	if strings.EqualFold(params["sortOrder"], "asc") {
		order = "ASC"
	}
	if params["distinctIp"] == "true" {
		// DISTINCT ON requires the distinct key to lead the ordering.
		listQuery = listQuery.OrderBy("ip", sortCol+" "+order)
	} else {
		listQuery = listQuery.OrderBy(sortCol + " " + order)
	}
	listQuery = listQuery.
		Offset(uint64(page-1) * uint64(pageSize)).
		Limit(uint64(pageSize))

	sqlStr, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, errors.Internal(err.Error(), errors.WithID("logsource.postgres.count.build.error"))
	}
	var total int64
	if err := db.QueryRow(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, errors.Internal(err.Error(),
			errors.WithID("logsource.postgres.count.error"), errors.WithCause(err))
	}

	sqlStr, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, errors.Internal(err.Error(), errors.WithID("logsource.postgres.list.build.error"))
	}
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, errors.Internal(err.Error(),
			errors.WithID("logsource.postgres.query.error"), errors.WithCause(err))
	}
	defer rows.Close()

	entries := make([]LogEntry, 0, pageSize)
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(
			&e.Timestamp, &e.IP, &e.Method, &e.URL, &e.StatusCode, &e.BytesSent,
			&e.Referer, &e.UserBrowser, &e.UserOS, &e.UserDevice,
			&e.DomesticLocation, &e.GlobalLocation, &e.PageviewFlag,
		); err != nil {
			return nil, 0, errors.Internal(err.Error(),
				errors.WithID("logsource.postgres.scan.error"), errors.WithCause(err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Internal(err.Error(),
			errors.WithID("logsource.postgres.rows.error"), errors.WithCause(err))
	}
	return entries, total, nil
}

func buildFilters(params map[string]string) ([]sq.Sqlizer, error) {
	var conds []sq.Sqlizer

	if id := params["id"]; id != "" {
		conds = append(conds, sq.Eq{"website_id": id})
	}

	from, to, err := timeBounds(params)
	if err != nil {
		return nil, err
	}
	if from > 0 {
		conds = append(conds, sq.GtOrEq{"ts": from})
	}
	if to > 0 {
		conds = append(conds, sq.LtOrEq{"ts": to})
	}

	if class := params["statusClass"]; class != "" {
		lead, err := strconv.Atoi(class[:1])
		if err != nil || len(class) != 3 {
			return nil, errors.InvalidArgument(fmt.Sprintf("bad status class %q", class),
				errors.WithID("logsource.filters.status_class.invalid"))
		}
		conds = append(conds, sq.GtOrEq{"status_code": lead * 100})
		conds = append(conds, sq.Lt{"status_code": (lead + 1) * 100})
	}
	if code := params["statusCode"]; code != "" {
		parsed, err := strconv.Atoi(code)
		if err != nil {
			return nil, errors.InvalidArgument(fmt.Sprintf("bad status code %q", code),
				errors.WithID("logsource.filters.status_code.invalid"))
		}
		conds = append(conds, sq.Eq{"status_code": parsed})
	}

	if ip := params["ipFilter"]; ip != "" {
		conds = append(conds, sq.Like{"ip": ip + "%"})
	}
	if url := params["urlFilter"]; url != "" {
		conds = append(conds, sq.ILike{"url": "%" + url + "%"})
	}
	if loc := params["locationFilter"]; loc != "" {
		conds = append(conds, sq.Or{
			sq.ILike{"location_cn": "%" + loc + "%"},
			sq.ILike{"location_global": "%" + loc + "%"},
		})
	}
	if filter := params["filter"]; filter != "" {
		pattern := "%" + filter + "%"
		conds = append(conds, sq.Or{
			sq.ILike{"url": pattern},
			sq.ILike{"referer": pattern},
			sq.Like{"ip": filter + "%"},
		})
	}

	if params["excludeInternal"] == "true" {
		conds = append(conds, sq.Eq{"internal": false})
	}
	if params["excludeSpider"] == "true" {
		conds = append(conds, sq.Eq{"spider": false})
	}
	if params["excludeForeign"] == "true" {
		conds = append(conds, sq.Eq{"foreign_ip": false})
	}
	if params["pageviewOnly"] == "true" {
		conds = append(conds, sq.Eq{"pageview": true})
	}

	return conds, nil
}

// timeBounds resolves either an explicit timeStart/timeEnd pair or a
// relative timeRange like "7d" / "24h" into unix-second bounds.
func timeBounds(params map[string]string) (int64, int64, error) {
	from, err := parseTimeParam(params["timeStart"])
	if err != nil {
		return 0, 0, err
	}
	to, err := parseTimeParam(params["timeEnd"])
	if err != nil {
		return 0, 0, err
	}
	if from > 0 || to > 0 {
		return from, to, nil
	}

	rng := params["timeRange"]
	if rng == "" {
		return 0, 0, nil
	}
	unit := rng[len(rng)-1]
	n, err := strconv.Atoi(rng[:len(rng)-1])
	if err != nil || n <= 0 {
		return 0, 0, errors.InvalidArgument(fmt.Sprintf("bad time range %q", rng),
			errors.WithID("logsource.filters.time_range.invalid"))
	}
	now := time.Now()
	switch unit {
	case 'd':
		return now.AddDate(0, 0, -n).Unix(), 0, nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour).Unix(), 0, nil
	}
	return 0, 0, errors.InvalidArgument(fmt.Sprintf("bad time range %q", rng),
		errors.WithID("logsource.filters.time_range.invalid"))
}

func parseTimeParam(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ts, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
		return t.Unix(), nil
	}
	return 0, errors.InvalidArgument(fmt.Sprintf("bad time value %q", value),
		errors.WithID("logsource.filters.time.invalid"))
}
