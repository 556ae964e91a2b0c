package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ai4os/papi/pkg/apierrors"
)

// ninetyDays matches the source's `datetime.now() - timedelta(days=90)`
// window applied to the timeseries summary.
const ninetyDays = 90 * 24 * time.Hour

// NamespaceStats is one namespace's trio of pre-computed accounting
// summaries, read verbatim from the "summaries/<namespace>-*.csv" files
// the source's load_stats function reads (spec §4.9's historical plane;
// the accounting pipeline that writes these files is out of PAPI's
// scope, spec §1 Non-goals).
type NamespaceStats struct {
	FullAgg    map[string]int64         `json:"full_agg"`
	Timeseries map[string][]string      `json:"timeseries"`
	UsersAgg   []map[string]string      `json:"users_agg"`
}

// HistoricalStore reads the CSV summaries ACCOUNTING_PTH points at. It
// holds no cache of its own: the source's six-hour TTLCache is folded
// into the HTTP layer's response caching instead of duplicated here, so
// this type stays a pure, trivially-testable file reader.
type HistoricalStore struct {
	root string // ACCOUNTING_PTH/summaries
}

func NewHistoricalStore(accountingPath string) *HistoricalStore {
	return &HistoricalStore{root: filepath.Join(accountingPath, "summaries")}
}

// Load reads the three summary files for one VO's nomad namespace.
func (h *HistoricalStore) Load(namespace string) (*NamespaceStats, error) {
	if h.root == "" {
		return nil, apierrors.New(apierrors.KindInternal, "deployment stats are not configured (no accounting path)")
	}

	full, err := h.readAgg(namespace + "-full-agg.csv")
	if err != nil {
		return nil, err
	}
	series, err := h.readTimeseries(namespace + "-timeseries.csv")
	if err != nil {
		return nil, err
	}
	users, err := h.readRows(namespace + "-users-agg.csv")
	if err != nil {
		return nil, err
	}

	return &NamespaceStats{FullAgg: full, Timeseries: series, UsersAgg: users}, nil
}

// UserStats narrows a NamespaceStats down to one user's users-agg row,
// matching get_user_stats' "keep only stats from the current user".
// UsersAgg is nil if the user has no recorded stats yet.
func (h *HistoricalStore) UserStats(namespace, owner string) (*NamespaceStats, error) {
	full, err := h.Load(namespace)
	if err != nil {
		return nil, err
	}
	out := &NamespaceStats{FullAgg: full.FullAgg, Timeseries: full.Timeseries}
	for _, row := range full.UsersAgg {
		if row["owner"] == owner {
			out.UsersAgg = []map[string]string{row}
			break
		}
	}
	return out, nil
}

func (h *HistoricalStore) open(name string) (*csv.Reader, *os.File, error) {
	f, err := os.Open(filepath.Join(h.root, name))
	if err != nil {
		return nil, nil, apierrors.New(apierrors.KindInternal, "deployment stats information not available (missing file)", apierrors.WithError(err))
	}
	r := csv.NewReader(f)
	r.Comma = ';'
	return r, f, nil
}

func (h *HistoricalStore) readRows(name string) ([]map[string]string, error) {
	r, f, err := h.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := r.ReadAll()
	if err != nil {
		return nil, apierrors.New(apierrors.KindInternal, "failed to parse "+name, apierrors.WithError(err))
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readAgg parses a single-row summary file into int64 totals, matching
// the source's `stats['full-agg'] = {k: v[0] for k, v in ...}` fold.
func (h *HistoricalStore) readAgg(name string) (map[string]int64, error) {
	rows, err := h.readRows(name)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	if len(rows) == 0 {
		return out, nil
	}
	for k, v := range rows[0] {
		if k == "date" || k == "owner" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// readTimeseries parses the full history and trims it to the last 90
// days, falling back to the last 90 rows if nothing falls in that
// window — the exact fallback load_stats uses when `idx` can't be found.
func (h *HistoricalStore) readTimeseries(name string) (map[string][]string, error) {
	rows, err := h.readRows(name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string][]string{}, nil
	}

	threshold := time.Now().Add(-ninetyDays).Format("2006-01-02")
	start := 0
	found := false
	for i, row := range rows {
		if row["date"] > threshold {
			start = i
			found = true
			break
		}
	}
	if !found {
		start = len(rows) - 90
		if start < 0 {
			start = 0
		}
	}
	rows = rows[start:]

	out := map[string][]string{}
	for _, row := range rows {
		for k, v := range row {
			out[k] = append(out[k], v)
		}
	}
	return out, nil
}
